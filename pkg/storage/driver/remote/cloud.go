package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrCloudNotFound is returned by cloudAPI methods when an id does not
// resolve to a live folder or file.
var ErrCloudNotFound = errors.New("remote: cloud object not found")

// ErrCloudConflict is returned when creating a folder whose name already
// exists under the same parent.
var ErrCloudConflict = errors.New("remote: cloud folder name conflict")

// cloudFile is a file entry in the simulated cloud drive.
type cloudFile struct {
	id          string
	folderID    string
	name        string
	size        int64
	nativeHash  string
	contentType string
	metadata    map[string]string
	modTime     time.Time
	data        []byte
}

// cloudFolder is a folder entry in the simulated cloud drive.
type cloudFolder struct {
	id       string
	parentID string
	name     string
}

// cloudAPI is the narrow surface the remote driver needs from a cloud drive
// API: folders, files, a non-MD5 native content hash, and workspace
// isolation. Any real SDK client exposing an equivalent surface can satisfy
// this interface; fakeCloud below is an in-process simulator used so the
// bridge logic is exercised deterministically without a network dependency.
type cloudAPI interface {
	// CreateFolder creates a folder named name under parentID within
	// workspace. Returns ErrCloudConflict if the name is already taken
	// under that parent.
	CreateFolder(ctx context.Context, workspace, parentID, name string) (folderID string, err error)

	// FindFolder resolves an existing folder by name under parentID.
	// Returns ErrCloudNotFound if none exists.
	FindFolder(ctx context.Context, workspace, parentID, name string) (folderID string, err error)

	// DeleteFolder removes a folder and everything inside it.
	DeleteFolder(ctx context.Context, workspace, folderID string) error

	// ListFolder lists the immediate file children of folderID.
	ListFolder(ctx context.Context, workspace, folderID string) ([]cloudFile, error)

	// ListSubfolders lists the immediate subfolders of folderID.
	ListSubfolders(ctx context.Context, workspace, folderID string) ([]cloudFolder, error)

	// UploadFile streams data into folderID under name, replacing any
	// existing file of that name. Returns the new file id, its size, and
	// its native (non-MD5) content hash.
	UploadFile(ctx context.Context, workspace, folderID, name, contentType string, metadata map[string]string, data io.Reader) (fileID string, size int64, nativeHash string, err error)

	// DownloadFile opens a reader over fileID's bytes.
	DownloadFile(ctx context.Context, workspace, fileID string) (io.ReadCloser, error)

	// StatFile returns metadata for fileID without its contents.
	StatFile(ctx context.Context, workspace, fileID string) (cloudFile, error)

	// DeleteFile removes fileID.
	DeleteFile(ctx context.Context, workspace, fileID string) error

	// CopyFile duplicates fileID into destFolderID under destName,
	// server-side (no re-upload). Returns the new file id.
	CopyFile(ctx context.Context, workspace, fileID, destFolderID, destName string) (newFileID string, err error)
}

// fakeCloud is an in-process simulator of a Box-like cloud drive: folders,
// files, opaque UUID ids, and a blake2b content hash standing in for the
// provider's real (non-MD5) native digest. The empty string is the implicit
// root folder id within each workspace.
type fakeCloud struct {
	mu      sync.Mutex
	folders map[string]map[string]cloudFolder // workspace -> folderID -> folder
	files   map[string]map[string]cloudFile   // workspace -> fileID -> file
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{
		folders: make(map[string]map[string]cloudFolder),
		files:   make(map[string]map[string]cloudFile),
	}
}

func (c *fakeCloud) workspaceFolders(workspace string) map[string]cloudFolder {
	m, ok := c.folders[workspace]
	if !ok {
		m = make(map[string]cloudFolder)
		c.folders[workspace] = m
	}
	return m
}

func (c *fakeCloud) workspaceFiles(workspace string) map[string]cloudFile {
	m, ok := c.files[workspace]
	if !ok {
		m = make(map[string]cloudFile)
		c.files[workspace] = m
	}
	return m
}

func (c *fakeCloud) CreateFolder(ctx context.Context, workspace, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	folders := c.workspaceFolders(workspace)
	for _, f := range folders {
		if f.parentID == parentID && f.name == name {
			return "", ErrCloudConflict
		}
	}

	id := uuid.NewString()
	folders[id] = cloudFolder{id: id, parentID: parentID, name: name}
	return id, nil
}

func (c *fakeCloud) FindFolder(ctx context.Context, workspace, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.workspaceFolders(workspace) {
		if f.parentID == parentID && f.name == name {
			return f.id, nil
		}
	}
	return "", ErrCloudNotFound
}

func (c *fakeCloud) DeleteFolder(ctx context.Context, workspace, folderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	folders := c.workspaceFolders(workspace)
	if _, ok := folders[folderID]; !ok {
		return ErrCloudNotFound
	}

	// Recursively remove subfolders and files.
	var remove func(id string)
	remove = func(id string) {
		delete(folders, id)
		for fid, f := range folders {
			if f.parentID == id {
				remove(fid)
			}
		}
		files := c.workspaceFiles(workspace)
		for fileID, f := range files {
			if f.folderID == id {
				delete(files, fileID)
			}
		}
	}
	remove(folderID)
	return nil
}

func (c *fakeCloud) ListFolder(ctx context.Context, workspace, folderID string) ([]cloudFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []cloudFile
	for _, f := range c.workspaceFiles(workspace) {
		if f.folderID == folderID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *fakeCloud) ListSubfolders(ctx context.Context, workspace, folderID string) ([]cloudFolder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []cloudFolder
	for _, f := range c.workspaceFolders(workspace) {
		if f.parentID == folderID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *fakeCloud) UploadFile(ctx context.Context, workspace, folderID, name, contentType string, metadata map[string]string, data io.Reader) (string, int64, string, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return "", 0, "", err
	}
	buf, err := io.ReadAll(io.TeeReader(data, hasher))
	if err != nil {
		return "", 0, "", fmt.Errorf("remote: upload %q: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return "", 0, "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	files := c.workspaceFiles(workspace)
	// Replace any existing file of the same name in this folder.
	for id, f := range files {
		if f.folderID == folderID && f.name == name {
			delete(files, id)
			break
		}
	}

	id := uuid.NewString()
	hash := fmt.Sprintf("%x", hasher.Sum(nil))
	files[id] = cloudFile{
		id:          id,
		folderID:    folderID,
		name:        name,
		size:        int64(len(buf)),
		nativeHash:  hash,
		contentType: contentType,
		metadata:    metadata,
		modTime:     time.Now(),
		data:        buf,
	}
	return id, int64(len(buf)), hash, nil
}

func (c *fakeCloud) DownloadFile(ctx context.Context, workspace, fileID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	f, ok := c.workspaceFiles(workspace)[fileID]
	c.mu.Unlock()
	if !ok {
		return nil, ErrCloudNotFound
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (c *fakeCloud) StatFile(ctx context.Context, workspace, fileID string) (cloudFile, error) {
	if err := ctx.Err(); err != nil {
		return cloudFile{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.workspaceFiles(workspace)[fileID]
	if !ok {
		return cloudFile{}, ErrCloudNotFound
	}
	return f, nil
}

func (c *fakeCloud) DeleteFile(ctx context.Context, workspace, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	files := c.workspaceFiles(workspace)
	if _, ok := files[fileID]; !ok {
		return ErrCloudNotFound
	}
	delete(files, fileID)
	return nil
}

func (c *fakeCloud) CopyFile(ctx context.Context, workspace, fileID, destFolderID, destName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	files := c.workspaceFiles(workspace)
	src, ok := files[fileID]
	if !ok {
		return "", ErrCloudNotFound
	}

	for id, f := range files {
		if f.folderID == destFolderID && f.name == destName {
			delete(files, id)
			break
		}
	}

	id := uuid.NewString()
	dataCopy := make([]byte, len(src.data))
	copy(dataCopy, src.data)
	files[id] = cloudFile{
		id:          id,
		folderID:    destFolderID,
		name:        destName,
		size:        src.size,
		nativeHash:  src.nativeHash,
		contentType: src.contentType,
		metadata:    src.metadata,
		modTime:     time.Now(),
		data:        dataCopy,
	}
	return id, nil
}
