// Package archive creates and extracts the tar.gz archives written by the
// backup command. Archives are plain tar.gz, readable by stock tar.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Create writes a tar.gz of the given paths to w. Absolute paths are
// stored without the leading slash, the way tar does. Directories are
// added recursively, symlinks are stored as links.
func Create(w io.Writer, paths []string) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	for _, path := range paths {
		if err := addPath(tarWriter, path); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to finish tar stream")
	}
	if err := gzWriter.Close(); err != nil {
		return errors.Wrap(err, "failed to finish gzip stream")
	}
	return nil
}

func addPath(tw *tar.Writer, path string) error {
	return filepath.Walk(path, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, "failed to walk %s", p)
		}
		return addEntry(tw, p, info)
	})
}

func addEntry(tw *tar.Writer, path string, info fs.FileInfo) error {
	var link string
	if info.Mode()&os.ModeSymlink != 0 {
		var err error
		link, err = os.Readlink(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read symlink %s", path)
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return errors.Wrapf(err, "failed to build tar header for %s", path)
	}
	header.Name = entryName(path, info.IsDir())

	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrapf(err, "failed to write tar header for %s", path)
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	defer file.Close()

	if _, err := io.Copy(tw, file); err != nil {
		return errors.Wrapf(err, "failed to archive %s", path)
	}
	log.Debugf("archived %s", path)
	return nil
}

// entryName converts a filesystem path to its archive member name.
func entryName(path string, isDir bool) string {
	name := filepath.ToSlash(path)
	name = strings.TrimPrefix(name, "/")
	if isDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}
	return name
}

// ExtractOptions control how an archive is unpacked.
type ExtractOptions struct {
	// StripComponents removes the given number of leading path elements
	// from every member, like tar --strip-components.
	StripComponents int
	// Overwrite allows replacing files that already exist in the
	// destination.
	Overwrite bool
}

// Extract unpacks a tar.gz archive into destDir. Members resolving
// outside destDir are rejected, existing files are refused unless
// Overwrite is set.
func Extract(archivePath, destDir string, opts ExtractOptions) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %s", archivePath)
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return errors.Wrapf(err, "%s is not a gzip archive", archivePath)
	}
	defer gzReader.Close()

	cleanDest := filepath.Clean(destDir)
	// Clean("/") is already separator-terminated, plain joins would
	// demand a "//" prefix and reject every member.
	destPrefix := cleanDest
	if !strings.HasSuffix(destPrefix, string(os.PathSeparator)) {
		destPrefix += string(os.PathSeparator)
	}
	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errors.Wrap(err, "failed to read tar header")
		}

		name, skip := stripComponents(header.Name, opts.StripComponents)
		if skip {
			continue
		}

		target := filepath.Join(cleanDest, filepath.FromSlash(name))
		if target != cleanDest && !strings.HasPrefix(target, destPrefix) {
			return errors.Errorf("invalid path in archive: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(header.Mode)); err != nil {
				return errors.Wrapf(err, "failed to create directory %s", target)
			}
		case tar.TypeReg:
			if err := extractFile(tarReader, target, fs.FileMode(header.Mode), opts.Overwrite); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := extractSymlink(header, target, opts.Overwrite); err != nil {
				return err
			}
		default:
			log.Warnf("skipping unsupported archive entry %s", header.Name)
		}
	}
	return nil
}

func extractFile(r io.Reader, target string, mode fs.FileMode, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %s", target)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(target, flags, mode)
	if err != nil {
		if os.IsExist(err) {
			return errors.Errorf("refusing to overwrite %s (use --overwrite)", target)
		}
		return errors.Wrapf(err, "failed to create %s", target)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to extract %s", target)
	}
	return file.Close()
}

func extractSymlink(header *tar.Header, target string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create parent directory for %s", target)
	}
	if _, err := os.Lstat(target); err == nil {
		if !overwrite {
			return errors.Errorf("refusing to overwrite %s (use --overwrite)", target)
		}
		if err := os.Remove(target); err != nil {
			return errors.Wrapf(err, "failed to replace %s", target)
		}
	}
	if err := os.Symlink(header.Linkname, target); err != nil {
		return errors.Wrapf(err, "failed to create symlink %s", target)
	}
	return nil
}

// stripComponents removes the specified number of leading path components.
func stripComponents(path string, count int) (string, bool) {
	if count == 0 {
		return path, false
	}
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")
	if len(parts) <= count {
		return "", true
	}
	return strings.Join(parts[count:], "/"), false
}
