package runtime

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/chefbuild/chef/internal/cheferr"
)

// MkdirAll creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, path string) error {
	return c.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", path)
}

// Upload streams hostPath (a file or directory) into the container at
// containerPath, matching [protocol.ContainerUploadRequest]. The stream
// is built with archive/tar rather than by shelling out to a host tar
// binary, and is extracted by running "tar xf - -C <dir>" inside the
// container's own toolchain.
func (c *Container) Upload(ctx context.Context, hostPath, containerPath string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInvalidArgument, err)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTar(pw, hostPath, info))
	}()

	return c.mustExec(ctx, "tar extract", pr, nil, "tar", "xf", "-", "-C", containerPath)
}

// writeTar archives root (a file or directory) into w, with entry names
// relative to root's parent so extracting at containerPath reproduces
// root's own basename underneath it.
func writeTar(w io.Writer, root string, rootInfo os.FileInfo) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	base := filepath.Dir(root)

	if !rootInfo.IsDir() {
		return writeTarEntry(tw, root, base, rootInfo)
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		return writeTarEntry(tw, path, base, info)
	})
}

func writeTarEntry(tw *tar.Writer, path, base string, info os.FileInfo) error {
	link := ""
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		link = target
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if info.Mode().IsRegular() {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
	}
	return nil
}

// mustExec runs a command inside the container, returning an error that
// includes desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	pspec, err := c.buildProcessSpec(ctx, nil, "", args...)
	if err != nil {
		return cheferr.Wrap(cheferr.ErrInternal, err)
	}

	var stderr bytes.Buffer
	_, exitCode, err := c.execProcess(ctx, pspec, stdin, stdout, &stderr)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return cheferr.Wrapf(cheferr.ErrInternal, "%s failed with exit code %d (%s)", desc, exitCode, stderr.String())
	}
	return nil
}
