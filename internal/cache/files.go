package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".cache-"

// resolvePath 将 Key 映射为 <root>/<identifier>/<name>，拒绝逃逸出 identifier 目录的路径。
func resolvePath(root string, key Key) (string, error) {
	if strings.TrimSpace(key.Identifier) == "" || key.Name == "" {
		return "", ErrInvalidKey
	}

	base := filepath.Join(root, filepath.FromSlash(key.Identifier))
	if !within(root, base) {
		return "", ErrInvalidKey
	}
	filePath := filepath.Join(base, filepath.FromSlash(key.Name))
	if !within(base, filePath) {
		return "", ErrInvalidKey
	}
	return filePath, nil
}

// within 要求 child 严格位于 parent 之下。
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// statRegular 返回普通文件的信息；文件不存在或是目录时 ok 为 false。
func statRegular(filePath string) (fs.FileInfo, bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, ioError("stat", filePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	return info, true, nil
}

func readContent(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", ioError("read", filePath, err)
	}
	return string(data), nil
}

// writeContent 通过临时文件 + rename 写入，失败时清理临时文件，返回落盘后的文件信息。
func writeContent(filePath, content string) (fs.FileInfo, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ioError("mkdir", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return nil, ioError("write", filePath, err)
	}
	tempName := tempFile.Name()

	_, err = tempFile.WriteString(content)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return nil, ioError("write", filePath, err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, ioError("rename", filePath, err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, ioError("stat", filePath, err)
	}
	return info, nil
}
