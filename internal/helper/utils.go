package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// ShortID returns a uuid without dashes, safe for table and collection names
func ShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// pretty print
func PrettyPrint(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn().Err(err).Msg("Error pretty printing")
		return
	}
	fmt.Println(string(b))
}

// create folder if missing
func CreateFolder(path string) error {
	return os.MkdirAll(path, 0o755)
}

// SecureFilename reduces a client supplied name to a flat ASCII file name.
// It returns "" when nothing usable is left.
func SecureFilename(name string) string {
	name = norm.NFKD.String(name)

	var b strings.Builder
	for _, r := range name {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	name = b.String()
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// SaveUpload writes r to dir under the sanitized filename and returns the path.
func SaveUpload(dir, filename string, r io.Reader) (string, error) {
	safe := SecureFilename(filename)
	if safe == "" {
		return "", fmt.Errorf("filename %q is empty after sanitizing", filename)
	}
	if err := CreateFolder(dir); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	path := filepath.Join(dir, safe)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
