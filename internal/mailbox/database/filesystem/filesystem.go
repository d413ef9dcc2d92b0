package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/OliverSchlueter/goutils/sloki"
	"github.com/OliverSchlueter/openack/internal/mailbox"
	"github.com/klauspost/compress/zip"
)

const (
	inboxDirName = "inbox"
	doneDirName  = "done"
	tmpDirName   = "tmp"
	lockFileName = ".lock"
)

// DB stores mailboxes below root as <agent>/inbox, <agent>/done and the
// private staging directory <agent>/tmp.
type DB struct {
	root  string
	locks *mailbox.AgentLocks
}

func NewDB(root string) *DB {
	return &DB{
		root:  root,
		locks: mailbox.NewAgentLocks(),
	}
}

func (db *DB) InboxDir(agent string) string {
	return filepath.Join(db.root, agent, inboxDirName)
}

func (db *DB) DoneDir(agent string) string {
	return filepath.Join(db.root, agent, doneDirName)
}

// InsertEntry writes every part into a staging directory first and then
// publishes the parts into the inbox, attachments first and the message file
// last. The entry becomes visible to GetKeys only when the message file
// appears.
func (db *DB) InsertEntry(ctx context.Context, recipient string, entry mailbox.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmpDir := filepath.Join(db.root, recipient, tmpDirName)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("could not create staging directory: %w", err)
	}

	staging, err := os.MkdirTemp(tmpDir, entry.Key.String()+"-*")
	if err != nil {
		return fmt.Errorf("could not create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for _, a := range entry.Attachments {
		if err := writeFile(filepath.Join(staging, a.Name), a.Content); err != nil {
			return fmt.Errorf("could not write attachment %s: %w", a.Name, err)
		}
	}

	msgName := entry.Key.MessageFileName()
	if err := writeFile(filepath.Join(staging, msgName), mailbox.Encode(entry.Message)); err != nil {
		return fmt.Errorf("could not write message file: %w", err)
	}

	inbox := db.InboxDir(recipient)
	if err := os.MkdirAll(inbox, 0o755); err != nil {
		return fmt.Errorf("could not create inbox: %w", err)
	}

	var published []string
	unpublish := func() {
		for _, p := range published {
			if err := os.Remove(p); err != nil {
				slog.Error("Failed to remove partially published attachment", slog.String("path", p), sloki.WrapError(err))
			}
		}
	}

	for _, a := range entry.Attachments {
		target := filepath.Join(inbox, a.Name)
		if err := publish(filepath.Join(staging, a.Name), target); err != nil {
			unpublish()
			return err
		}
		published = append(published, target)
	}

	if err := publish(filepath.Join(staging, msgName), filepath.Join(inbox, msgName)); err != nil {
		unpublish()
		return err
	}

	syncDir(inbox)
	return nil
}

func (db *DB) GetKeys(ctx context.Context, recipient string) ([]mailbox.Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files, err := os.ReadDir(db.InboxDir(recipient))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not list inbox: %w", err)
	}

	var keys []mailbox.Key
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".md") {
			continue
		}

		key, err := mailbox.ParseKey(strings.TrimSuffix(name, ".md"))
		if err != nil {
			slog.Debug("Ignoring inbox file with invalid name", slog.String("agent", recipient), slog.String("file", name))
			continue
		}
		keys = append(keys, key)
	}

	return keys, nil
}

func (db *DB) GetEntry(ctx context.Context, recipient string, key mailbox.Key) (*mailbox.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inbox := db.InboxDir(recipient)
	msg, err := readMessage(filepath.Join(inbox, key.MessageFileName()), key)
	if err != nil {
		return nil, err
	}

	entry := &mailbox.Entry{Key: key}
	var names []string
	for _, ref := range msg.Attachments {
		name, ok := resolveAttachment(inbox, ref)
		if !ok {
			slog.Warn("Ignoring attachment reference outside of inbox", slog.String("agent", recipient), slog.String("key", key.String()), slog.String("ref", ref))
			continue
		}

		content, err := os.ReadFile(filepath.Join(inbox, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				slog.Warn("Attachment is missing", slog.String("agent", recipient), slog.String("key", key.String()), slog.String("file", name))
				continue
			}
			return nil, fmt.Errorf("could not read attachment %s: %w", name, err)
		}

		names = append(names, name)
		entry.Attachments = append(entry.Attachments, mailbox.Attachment{Name: name, Content: content})
	}

	msg.Attachments = names
	entry.Message = msg
	return entry, nil
}

// ArchiveEntry bundles the message file and its attachments into
// done/<key>.zip and removes them from the inbox. If the message file cannot
// be removed the bundle is deleted again, so the entry stays pending.
func (db *DB) ArchiveEntry(ctx context.Context, recipient string, key mailbox.Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	inbox := db.InboxDir(recipient)
	msgPath := filepath.Join(inbox, key.MessageFileName())
	msg, err := readMessage(msgPath, key)
	if err != nil {
		return err
	}

	parts := []bundlePart{{name: key.MessageFileName(), path: msgPath}}
	for _, ref := range msg.Attachments {
		name, ok := resolveAttachment(inbox, ref)
		if !ok {
			continue
		}

		p := filepath.Join(inbox, name)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("could not stat attachment %s: %w", name, err)
		}
		parts = append(parts, bundlePart{name: name, path: p})
	}

	done := db.DoneDir(recipient)
	if err := os.MkdirAll(done, 0o755); err != nil {
		return fmt.Errorf("could not create done directory: %w", err)
	}

	bundle := filepath.Join(done, key.BundleFileName())
	if err := writeBundle(done, key, bundle, parts); err != nil {
		return fmt.Errorf("could not write bundle for %s: %w", key, err)
	}

	if err := os.Remove(msgPath); err != nil {
		if rmErr := os.Remove(bundle); rmErr != nil {
			slog.Error("Failed to roll back bundle", slog.String("bundle", bundle), sloki.WrapError(rmErr))
		}
		return fmt.Errorf("could not remove message file %s: %w", key, err)
	}

	for _, p := range parts[1:] {
		if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove archived attachment", slog.String("path", p.path), sloki.WrapError(err))
		}
	}

	syncDir(done)
	syncDir(inbox)
	return nil
}

// Lock combines the in-process agent lock with an advisory file lock on
// <agent>/.lock, so separate processes sharing root exclude each other too.
func (db *DB) Lock(ctx context.Context, recipient string) (func(), error) {
	release, err := db.locks.Acquire(ctx, recipient)
	if err != nil {
		return nil, err
	}

	agentDir := filepath.Join(db.root, recipient)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		release()
		return nil, fmt.Errorf("could not create agent directory: %w", err)
	}

	unlock, err := lockFile(ctx, filepath.Join(agentDir, lockFileName))
	if err != nil {
		release()
		return nil, err
	}

	return func() {
		unlock()
		release()
	}, nil
}

// PruneInbox removes <key>-* files whose message file is gone and whose
// bundle exists in done. Such files remain when ArchiveEntry could not delete
// an attachment after the message file was already removed. Staged inserts
// are never touched: their parts have no bundle yet.
func (db *DB) PruneInbox(ctx context.Context, recipient string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	inbox := db.InboxDir(recipient)
	files, err := os.ReadDir(inbox)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("could not list inbox: %w", err)
	}

	removed := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}

		key, ok := mailbox.KeyFromAttachmentFileName(f.Name())
		if !ok {
			continue
		}
		if exists(filepath.Join(inbox, key.MessageFileName())) || !exists(filepath.Join(db.DoneDir(recipient), key.BundleFileName())) {
			continue
		}

		if err := os.Remove(filepath.Join(inbox, f.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Failed to remove leftover attachment", slog.String("agent", recipient), slog.String("file", f.Name()), sloki.WrapError(err))
			continue
		}
		removed++
	}

	if removed > 0 {
		syncDir(inbox)
	}
	return removed, nil
}

// exists reports false only when path is known to be absent; other stat
// errors count as present so nothing is removed on a guess.
func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

func readMessage(path string, key mailbox.Key) (mailbox.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return mailbox.Message{}, fmt.Errorf("%w: %s", mailbox.ErrEntryNotFound, key)
		}
		return mailbox.Message{}, fmt.Errorf("could not read message file %s: %w", key, err)
	}

	msg, err := mailbox.Parse(data)
	if err != nil {
		return mailbox.Message{}, fmt.Errorf("%s: %w", key, err)
	}
	return msg, nil
}

// resolveAttachment maps a footer reference onto a file name directly inside
// inbox. Absolute paths are accepted only when they point into inbox.
func resolveAttachment(inbox string, ref string) (string, bool) {
	if filepath.IsAbs(ref) {
		abs, err := filepath.Abs(inbox)
		if err != nil || filepath.Dir(filepath.Clean(ref)) != abs {
			return "", false
		}
		return filepath.Base(ref), true
	}

	if ref != filepath.Base(ref) || ref == "." || ref == ".." {
		return "", false
	}
	return ref, true
}

// link is swapped in tests to simulate filesystems without hard links.
var link = os.Link

// publish makes src visible as dst without ever replacing an existing file.
// Hard links give that guarantee atomically. Where the filesystem refuses
// them, the staged file is renamed instead after checking dst is free; keys
// are unique, so the check only guards against foreign files.
func publish(src string, dst string) error {
	err := link(src, dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("%w: %s", mailbox.ErrEntryExists, filepath.Base(dst))
	}

	if _, statErr := os.Lstat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", mailbox.ErrEntryExists, filepath.Base(dst))
	} else if !errors.Is(statErr, fs.ErrNotExist) {
		return fmt.Errorf("could not publish %s: %w", filepath.Base(dst), statErr)
	}

	slog.Debug("Hard link failed, renaming staged file instead", slog.String("file", filepath.Base(dst)), sloki.WrapError(err))
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("could not publish %s: %w", filepath.Base(dst), err)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type bundlePart struct {
	name string
	path string
}

func writeBundle(dir string, key mailbox.Key, bundle string, parts []bundlePart) error {
	tmp, err := os.CreateTemp(dir, "."+key.String()+"-*.zip.tmp")
	if err != nil {
		return err
	}

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	zw := zip.NewWriter(tmp)
	for _, p := range parts {
		if err := addToBundle(zw, p); err != nil {
			return fail(err)
		}
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), bundle); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func addToBundle(zw *zip.Writer, part bundlePart) error {
	f, err := os.Open(part.path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     part.name,
		Method:   zip.Deflate,
		Modified: info.ModTime(),
	})
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)
	return err
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
