package spectrum

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DateLayout is the date stamp in file names
const DateLayout = "20060102"

var seqRe = regexp.MustCompile(`_(\d+)\.txt$`)

// NextPath returns the path of the next data file for today:
// dir/<prefix>_<YYYYMMDD>_<NN>.txt, where NN is one more than the highest
// sequence number already in dir for that date.  dir is created if needed.
func NextPath(dir, prefix string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating data directory")
	}
	stem := prefix + "_" + now.Format(DateLayout)
	matches, err := filepath.Glob(filepath.Join(dir, globEscape(stem)+"_*.txt"))
	if err != nil {
		return "", errors.Wrap(err, "listing data files")
	}
	highest := 0
	for _, m := range matches {
		sub := seqRe.FindStringSubmatch(filepath.Base(m))
		if sub == nil {
			continue
		}
		n, err := strconv.Atoi(sub[1])
		if err == nil && n > highest {
			highest = n
		}
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%02d.txt", stem, highest+1)), nil
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return r.Replace(s)
}

// Item is one key/value line of a header
type Item struct {
	Key   string
	Value string
}

// Header is the text written above the data.  The first line is the sample
// name and comment; each item follows on its own line.
type Header struct {
	Sample  string
	Comment string
	Items   []Item
}

// Add appends an item, formatting v with %v
func (h *Header) Add(key string, v interface{}) {
	h.Items = append(h.Items, Item{Key: key, Value: fmt.Sprint(v)})
}

// Lines returns the header without comment markers
func (h Header) Lines() []string {
	out := []string{h.Sample + ", " + h.Comment}
	for _, it := range h.Items {
		out = append(out, it.Key+" "+it.Value)
	}
	return out
}

// WriteTable writes the header, every line prefixed "# ", then the rows,
// space delimited in %.18e
func WriteTable(w io.Writer, t *Table, h Header) error {
	bw := bufio.NewWriter(w)
	for _, l := range h.Lines() {
		if _, err := fmt.Fprintf(bw, "# %s\n", l); err != nil {
			return err
		}
	}
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		for j, v := range r {
			if j > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%.18e", v)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ImageRenderer draws a spectrum to an image file
type ImageRenderer interface {
	Render(t *Table, path string) error
}

// Store saves spectra to a directory
type Store struct {
	Dir    string
	Prefix string

	// Renderer writes the companion image, if not nil
	Renderer ImageRenderer

	// Now is the clock used for file names; time.Now if nil
	Now func() time.Time
}

// Save writes the table and its image and returns the path of the table
func (s *Store) Save(t *Table, h Header) (string, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	path, err := NextPath(s.Dir, s.Prefix, now())
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "creating data file")
	}
	if err = WriteTable(f, t, h); err != nil {
		f.Close()
		return "", errors.Wrapf(err, "writing %s", path)
	}
	if err = f.Close(); err != nil {
		return "", err
	}
	if s.Renderer != nil {
		img := strings.TrimSuffix(path, filepath.Ext(path)) + ".png"
		if err = s.Renderer.Render(t, img); err != nil {
			return path, errors.Wrap(err, "rendering plot")
		}
	}
	return path, nil
}
