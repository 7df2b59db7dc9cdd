package client

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/chzyer/readline"
	"github.com/mdouchement/writersync/internal/store"
	"github.com/mdouchement/writersync/pkg/itemlock"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// NoteAdd creates a note.
func NoteAdd(ctx context.Context, title, body, category string) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	n := store.Note{Title: title, Body: body}
	if n.CategoryID, err = categoryRef(ctx, a, category); err != nil {
		return err
	}

	if err = a.store.CreateNote(ctx, &n); err != nil {
		return errors.Wrap(err, "could not create note")
	}

	fmt.Println("Created note", n.ID)
	return nil
}

// categoryRef returns the remote id of the referenced category.
// Notes reference categories by remote id so the reference is valid on every device.
func categoryRef(ctx context.Context, a *app, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	c, err := a.store.Category(ctx, ref)
	if err != nil {
		return "", err
	}
	if c.RemoteID == "" {
		return "", errors.Errorf("category %q has never been synced, run `wsc sync` first", c.Name)
	}
	return c.RemoteID, nil
}

// NoteList prints the notes.
func NoteList(ctx context.Context) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	notes, err := a.store.Notes(ctx)
	if err != nil {
		return err
	}
	categories, err := a.store.Categories(ctx)
	if err != nil {
		return err
	}
	names := map[string]string{}
	for _, c := range categories {
		if c.RemoteID != "" {
			names[c.RemoteID] = c.Name
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUPDATED\tCATEGORY\tTITLE")
	for _, n := range notes {
		title := n.Title
		if n.Encrypted {
			title += " [locked]"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", n.ID, n.Status, n.UpdatedAt.Local().Format(time.DateTime), names[n.CategoryID], title)
	}
	return w.Flush()
}

// NoteShow prints a note. A locked note asks for its passphrase.
func NoteShow(ctx context.Context, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.Note(ctx, id)
	if err != nil {
		return err
	}

	body := n.Body
	if n.Encrypted {
		plaintext, _, err := unlockBody(a.session.Locker, n)
		if err != nil {
			return err
		}
		body = string(plaintext)
		libsync.Wipe(plaintext)
	}

	fmt.Printf("%s\n\n%s\n", n.Title, body)
	return nil
}

// NoteEdit opens the note in $EDITOR. While the editor is open the note is protected
// from pulls and a pass runs every interval (zero disables the background passes).
func NoteEdit(ctx context.Context, id int64, interval time.Duration) error {
	log := NewLogger(LogFile, logrus.InfoLevel, false)

	a, err := load(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.Note(ctx, id)
	if err != nil {
		return err
	}

	body := []byte(n.Body)
	var passphrase []byte
	if n.Encrypted {
		body, passphrase, err = unlockBody(a.session.Locker, n)
		if err != nil {
			return err
		}
		defer libsync.Wipe(passphrase)
	}

	f, err := os.CreateTemp("", "wsc-*.txt")
	if err != nil {
		return errors.Wrap(err, "could not create temporary file")
	}
	defer os.Remove(f.Name())

	original := string(body)
	_, err = f.WriteString(editorContent(n.Title, original))
	libsync.Wipe(body)
	f.Close()
	if err != nil {
		return errors.Wrap(err, "could not write temporary file")
	}

	a.session.Guard.Begin(libsync.ItemTypeNote, id)
	defer a.session.Guard.End(libsync.ItemTypeNote, id)

	stop := background(ctx, a, log, interval)
	err = editor(f.Name())
	stop()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(f.Name())
	if err != nil {
		return errors.Wrap(err, "could not read temporary file")
	}

	title, text := parseEditorContent(string(content))
	if title == n.Title && text == original {
		fmt.Println("No changes")
		return nil
	}

	// The note may have been updated by a background pass.
	current, err := a.store.Note(ctx, id)
	if err != nil {
		return err
	}
	current.Title = title
	current.Body = text
	if n.Encrypted {
		if current.Body, err = a.session.Locker.Lock([]byte(text), passphrase); err != nil {
			return errors.Wrap(err, "could not lock note")
		}
	}

	if err = a.store.UpdateNote(ctx, current); err != nil {
		return errors.Wrap(err, "could not save note")
	}
	fmt.Println("Saved note", id)

	if interval > 0 {
		run(ctx, a, log)
	}
	return nil
}

func background(ctx context.Context, a *app, log logrus.FieldLogger, interval time.Duration) (stop func()) {
	if interval <= 0 || !a.session.Unlocked() {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run(ctx, a, log)
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func editor(filename string) error {
	name := os.Getenv("EDITOR")
	if name == "" {
		name = "vi"
	}

	args := strings.Fields(name)
	cmd := exec.Command(args[0], append(args[1:], filename)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	return errors.Wrapf(cmd.Run(), "editor %s failed", name)
}

// editorContent renders a note as edited: the title line, a blank line, then the body.
func editorContent(title, body string) string {
	return title + "\n\n" + body
}

func parseEditorContent(content string) (title, body string) {
	title, body, _ = strings.Cut(content, "\n")
	return strings.TrimSpace(title), strings.TrimPrefix(body, "\n")
}

// NoteRm deletes a note.
func NoteRm(ctx context.Context, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	if err = a.store.DeleteNote(ctx, id); err != nil {
		return err
	}

	fmt.Println("Deleted note", id)
	return nil
}

// NoteLock locks the body of a note with its own passphrase.
func NoteLock(ctx context.Context, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.Note(ctx, id)
	if err != nil {
		return err
	}
	if n.Encrypted || itemlock.IsLocked(n.Body) {
		return errors.Errorf("note %d is already locked", id)
	}

	passphrase, err := readline.Password("Note passphrase: ")
	if err != nil {
		return errors.Wrap(err, "could not read passphrase from stdin")
	}
	defer libsync.Wipe(passphrase)

	confirmation, err := readline.Password("Confirm: ")
	if err != nil {
		return errors.Wrap(err, "could not read passphrase from stdin")
	}
	match := string(confirmation) == string(passphrase)
	libsync.Wipe(confirmation)
	if !match {
		return errors.New("passphrases do not match")
	}

	if n.Body, err = a.session.Locker.Lock([]byte(n.Body), passphrase); err != nil {
		return errors.Wrap(err, "could not lock note")
	}
	n.Encrypted = true

	if err = a.store.UpdateNote(ctx, n); err != nil {
		return errors.Wrap(err, "could not save note")
	}

	fmt.Println("Locked note", id)
	return nil
}

// NoteUnlock removes the passphrase of a note.
func NoteUnlock(ctx context.Context, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.store.Note(ctx, id)
	if err != nil {
		return err
	}
	if !n.Encrypted {
		return errors.Errorf("note %d is not locked", id)
	}

	plaintext, passphrase, err := unlockBody(a.session.Locker, n)
	if err != nil {
		return err
	}
	libsync.Wipe(passphrase)

	n.Body = string(plaintext)
	n.Encrypted = false
	libsync.Wipe(plaintext)

	if err = a.store.UpdateNote(ctx, n); err != nil {
		return errors.Wrap(err, "could not save note")
	}

	fmt.Println("Unlocked note", id)
	return nil
}

// unlockBody prompts the passphrase of a locked note and returns the plaintext body with the passphrase.
func unlockBody(locker *itemlock.Locker, n store.Note) (plaintext, passphrase []byte, err error) {
	if cached, ok := locker.Passphrase(n.ID); ok {
		if plaintext, err = locker.Unlock(n.Body, cached); err == nil {
			return plaintext, cached, nil
		}
		libsync.Wipe(cached)
		locker.Forget(n.ID)
	}

	passphrase, err = readline.Password("Note passphrase: ")
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not read passphrase from stdin")
	}

	plaintext, err = locker.Unlock(n.Body, passphrase)
	if err != nil {
		libsync.Wipe(passphrase)
		return nil, nil, err
	}

	locker.Remember(n.ID, passphrase)
	return plaintext, passphrase, nil
}
