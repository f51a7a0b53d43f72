package gitsync

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
)

// vcsDir is left out of a bootstrap copy, so the fallback working copy never
// reports git metadata.
const vcsDir = ".git"

// copyTree recursively copies src to dst, preserving modes and symlinks and
// skipping entries named in skip at every level.
func copyTree(src, dst string, skip ...string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()|0700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if slices.Contains(skip, entry.Name()) {
			continue
		}
		if err := copyEntry(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), entry.Type(), skip); err != nil {
			return err
		}
	}

	return nil
}

func copyEntry(srcPath, dstPath string, mode fs.FileMode, skip []string) error {
	switch {
	case mode.IsDir():
		return copyTree(srcPath, dstPath, skip...)
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(srcPath)
		if err != nil {
			return err
		}
		return os.Symlink(target, dstPath)
	case mode.IsRegular():
		return copyFile(srcPath, dstPath)
	}
	// Sockets, devices and pipes are skipped.
	return nil
}

// copyFile copies a single file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
