package runner

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Reporter writes progress lines prefixed with the endpoint name. Each endpoint gets a stable color
// and secrets are masked in every line. Safe for concurrent use.
type Reporter struct {
	wr         io.Writer
	secrets    []*regexp.Regexp
	monochrome bool
	lock       sync.Mutex
}

// NewReporter makes a reporter for wr, monochrome disables colors
func NewReporter(wr io.Writer, monochrome bool, secrets []string) *Reporter {
	res := &Reporter{wr: wr, monochrome: monochrome}
	for _, s := range secrets {
		if strings.TrimSpace(s) == "" {
			continue
		}
		res.secrets = append(res.secrets, secretRe(s))
	}
	return res
}

// secretRe matches s as a whole word. Word boundary is only required on the sides where s
// starts or ends with a word character, \b never matches between punctuation and space.
func secretRe(s string) *regexp.Regexp {
	// ascii only, same as \b in regexp
	isWord := func(r rune) bool {
		return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}
	pattern := regexp.QuoteMeta(s)
	if r, _ := utf8.DecodeRuneInString(s); isWord(r) {
		pattern = `\b` + pattern
	}
	if r, _ := utf8.DecodeLastRuneInString(s); isWord(r) {
		pattern += `\b`
	}
	return regexp.MustCompile(pattern)
}

// Printf writes formatted text, one "[endpoint] line" per line of the text
func (r *Reporter) Printf(endpoint, format string, v ...any) {
	if r == nil {
		return
	}
	r.lock.Lock()
	defer r.lock.Unlock()

	colorize := r.colorizer(endpoint)
	scanner := bufio.NewScanner(strings.NewReader(fmt.Sprintf(format, v...)))
	for scanner.Scan() {
		line := r.mask(fmt.Sprintf("[%s] %s", endpoint, scanner.Text()))
		if _, err := io.WriteString(r.wr, colorize("%s\n", line)); err != nil {
			return
		}
	}
}

func (r *Reporter) mask(s string) string {
	for _, re := range r.secrets {
		s = re.ReplaceAllString(s, "****")
	}
	return s
}

func (r *Reporter) colorizer(endpoint string) func(format string, a ...any) string {
	if r.monochrome {
		return fmt.Sprintf
	}
	colors := []color.Attribute{
		color.FgHiRed, color.FgHiGreen, color.FgHiYellow,
		color.FgHiBlue, color.FgHiMagenta, color.FgHiCyan,
		color.FgRed, color.FgGreen, color.FgYellow,
		color.FgBlue, color.FgMagenta, color.FgCyan,
	}
	return color.New(colors[crc32.ChecksumIEEE([]byte(endpoint))%uint32(len(colors))]).SprintfFunc()
}
