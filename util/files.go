package util

import (
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/sys/unix"
)

// tempFileSuffix marks files being written by WriteFileAt
const tempFileSuffix = ".tmp"

// ListFiles lists non-dir files or first level files under the directories in the given path pattern
//
// "-" and other non-matching patterns give an empty list.
func ListFiles(directoryOrFilePattern string) ([]string, error) {
	inputList, gerr := filepath.Glob(directoryOrFilePattern)
	if gerr != nil {
		return nil, gerr
	}
	pathList := make([]string, 0, len(inputList)*2+10)
	for _, input := range inputList {
		stat, serr := os.Stat(input)
		if serr != nil {
			return nil, serr
		}
		if !stat.IsDir() {
			pathList = append(pathList, input)
			continue
		}
		fileList, rerr := os.ReadDir(input)
		if rerr != nil {
			return nil, rerr
		}
		for _, file := range fileList {
			if file.IsDir() {
				continue
			}
			pathList = append(pathList, filepath.Join(input, file.Name()))
		}
	}
	sort.Strings(pathList)
	return pathList, nil
}

// ReadFileAt reads full contents of a file in given directory
func ReadFileAt(dir *os.File, filename string) ([]byte, error) {
	fd, oerr := unix.Openat(int(dir.Fd()), filename, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if oerr != nil {
		return nil, oerr
	}
	defer unix.Close(fd)

	var stat unix.Stat_t
	if serr := unix.Fstat(fd, &stat); serr != nil {
		return nil, serr
	}
	buf := make([]byte, stat.Size)
	total := 0
	for total < len(buf) {
		n, rerr := unix.Read(fd, buf[total:])
		if rerr != nil {
			return nil, rerr
		}
		if n == 0 {
			break
		}
		total += n
	}
	return buf[:total], nil
}

// UnlinkFileAt unlinks an existing file in given directory
func UnlinkFileAt(dir *os.File, filename string) error {
	return unix.Unlinkat(int(dir.Fd()), filename, 0)
}

// WriteFileAt writes a file in given directory, replacing any existing one
//
// Contents go to "{filename}.tmp" first and are synced before the rename, so readers never see a partial file.
func WriteFileAt(dir *os.File, filename string, data []byte, perm os.FileMode) error {
	dirFd := int(dir.Fd())
	tempName := filename + tempFileSuffix
	fd, oerr := unix.Openat(dirFd, tempName, unix.O_WRONLY|unix.O_CREAT|unix.O_TRUNC|unix.O_CLOEXEC, uint32(perm))
	if oerr != nil {
		return oerr
	}
	werr := writeAll(fd, data)
	if werr == nil {
		werr = unix.Fsync(fd)
	}
	unix.Close(fd)
	if werr != nil {
		_ = unix.Unlinkat(dirFd, tempName, 0)
		return werr
	}
	return unix.Renameat(dirFd, tempName, dirFd, filename)
}

func writeAll(fd int, data []byte) error {
	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
