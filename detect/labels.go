package detect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Labels maps class ids to names.
type Labels map[int]string

// Name returns the label of id, or class_<id> when unknown.
func (l Labels) Name(id int) string {
	if name, ok := l[id]; ok {
		return name
	}
	return fmt.Sprintf("class_%d", id)
}

// ReadLabels parses a label map. Each non-empty line is either "<id> <name>"
// or a bare name, in which case the id is the line's position counting from
// zero among the bare names. Lines starting with # are ignored.
func ReadLabels(r io.Reader) (Labels, error) {
	labels := Labels{}
	next := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) == 2 {
			if id, err := strconv.Atoi(fields[0]); err == nil {
				labels[id] = strings.TrimSpace(fields[1])
				continue
			}
		}
		labels[next] = line
		next++
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading labels")
	}
	return labels, nil
}

// LoadLabels reads a label map from a file.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening labels")
	}
	defer f.Close()
	return ReadLabels(f)
}
