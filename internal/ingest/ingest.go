package ingest

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"vatproof/internal/config"
)

// MaxLines caps how many VAT numbers are taken from one list.
const MaxLines = 1000

var (
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrFileTooLarge         = errors.New("file too large")
	ErrEmptyContent         = errors.New("no VAT number found")
	ErrUnsupportedFormat    = errors.New("file format cannot be read locally")
)

// Validator applies the client-side checks done before a list is sent.
type Validator struct {
	MaxFileSize       int64
	AllowedExtensions []string
}

// NewValidator builds a Validator from the ingest configuration.
func NewValidator(cfg config.IngestConfig) *Validator {
	v := &Validator{MaxFileSize: cfg.MaxFileSize, AllowedExtensions: cfg.AllowedExtensions}
	if v.MaxFileSize <= 0 {
		v.MaxFileSize = config.DefaultMaxFileSize
	}
	if len(v.AllowedExtensions) == 0 {
		v.AllowedExtensions = config.DefaultAllowedExtensions
	}
	return v
}

// ValidateExtension checks the file name against the allowed extensions,
// case-insensitively.
func (v *Validator) ValidateExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range v.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w %q, allowed: %s", ErrUnsupportedExtension, ext, strings.Join(v.AllowedExtensions, ", "))
}

func (v *Validator) ValidateSize(size int64) error {
	if size > v.MaxFileSize {
		return fmt.Errorf("%w (%s, max %s)", ErrFileTooLarge, FormatFileSize(size), FormatFileSize(v.MaxFileSize))
	}
	return nil
}

// Validate runs both file checks.
func (v *Validator) Validate(name string, size int64) error {
	if err := v.ValidateExtension(name); err != nil {
		return err
	}
	return v.ValidateSize(size)
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count with 1024-based units and at most two
// decimals, e.g. "0 Bytes", "1.5 KB", "16 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	v, i := float64(bytes), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

// CleanVAT keeps letters and digits only, upper-cased.
func CleanVAT(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// List is a VAT list read from a paste or a file.
type List struct {
	Numbers []string
	// Truncated is set when the source held more than MaxLines entries.
	Truncated bool
}

// Content renders the list in the one-number-per-line form expected by
// the verify-paste endpoint.
func (l *List) Content() string {
	return strings.Join(l.Numbers, "\n")
}

func (l *List) add(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	if len(l.Numbers) >= MaxLines {
		l.Truncated = true
		return false
	}
	l.Numbers = append(l.Numbers, v)
	return true
}

// ParseText reads pasted content: one number per line, and for lines that
// hold several fields (",", ";" or tab separated) the first field.
func ParseText(content string) (*List, error) {
	l := &List{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if i := strings.IndexAny(line, ",;\t"); i >= 0 {
			line = line[:i]
		}
		if !l.add(line) {
			break
		}
	}
	if len(l.Numbers) == 0 {
		return nil, ErrEmptyContent
	}
	return l, nil
}

// PreviewRow is one line of the preview table shown before a job starts.
type PreviewRow struct {
	Index       int    `json:"index"`
	VAT         string `json:"vat"`
	CountryCode string `json:"country_code"`
	Number      string `json:"number"`
}

// Preview returns the first n entries split into country code and number.
func Preview(numbers []string, n int) []PreviewRow {
	if n > len(numbers) || n < 0 {
		n = len(numbers)
	}
	rows := make([]PreviewRow, 0, n)
	for i, raw := range numbers[:n] {
		row := PreviewRow{Index: i + 1, VAT: raw}
		if len(raw) >= 2 {
			row.CountryCode = strings.ToUpper(raw[:2])
			row.Number = raw[2:]
		}
		rows = append(rows, row)
	}
	return rows
}
