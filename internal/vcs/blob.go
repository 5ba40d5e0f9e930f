package vcs

import (
	"crypto/sha1"
	"encoding/hex"
	"io"
	"os"
	"strconv"
)

// gitLikeHashFile reproduces `git hash-object`'s SHA-1 over a file's git
// blob representation ("blob <size>\0<content>") without shelling out to
// git, so manual hashing agrees with gitHashObject byte for byte.
func gitLikeHashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return "", err
	}

	h := sha1.New()
	h.Write([]byte("blob "))
	h.Write([]byte(strconv.FormatInt(stat.Size(), 10)))
	h.Write([]byte{0})
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
