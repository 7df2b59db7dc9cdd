//
// libsync is the client side of the writersync protocol: the HTTP transport,
// the account bulk key hierarchy and the error kinds shared by the sync stack.
//

// Create client
//
//	client, err := libsync.NewDefaultClient("https://notes.nas.lan")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Authenticate
//
//	_, err = client.Login(ctx, "george.abitbol@nas.lan", "password42")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Unlock the bulk key
//
//	mk, err := client.MasterKey(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	key, err := libsync.UnwrapBulkKey(libsync.StringValue(mk.EncryptedMasterKey), password)
//	if errors.Is(err, libsync.ErrDecryption) {
//		log.Fatal("wrong encryption password")
//	}
//
// Pull changes
//
//	changes, err := client.Pull(ctx, libsync.CheckpointSentinel)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	for _, entry := range changes.Entries {
//		payload, err := key.DecryptPayload(entry.EncryptedData)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("Title:", payload["title"])
//	}
package libsync
