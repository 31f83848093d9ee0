// Package prompt asks the operator for the input files when tickstore runs
// on a terminal without them.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goprompt "github.com/c-bata/go-prompt"
	"github.com/c-bata/go-prompt/completer"
	"golang.org/x/term"

	"github.com/xtxerr/tickstore/config"
	"github.com/xtxerr/tickstore/internal/errors"
)

// maxTries bounds how often a question is repeated after an invalid answer.
const maxTries = 3

// AskFunc shows prefix and returns the operator's answer.
type AskFunc func(prefix string, c goprompt.Completer) string

// Selection holds the operator's answers.
type Selection struct {
	// ExistingDB skips ingestion and only compacts the store.
	ExistingDB bool

	AskFile  string
	BidFile  string
	PriceDir string
}

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Selector runs the question sequence.
type Selector struct {
	ask   AskFunc
	files goprompt.Completer
	dirs  goprompt.Completer
}

// New returns a selector reading from the terminal with path completion.
func New() *Selector {
	return NewWithAsk(func(prefix string, c goprompt.Completer) string {
		return goprompt.Input(prefix, c,
			goprompt.OptionTitle("tickstore"),
			goprompt.OptionPrefixTextColor(goprompt.Yellow),
			goprompt.OptionCompletionOnDown())
	})
}

// NewWithAsk returns a selector using ask for every question.
func NewWithAsk(ask AskFunc) *Selector {
	files := &completer.FilePathCompleter{IgnoreCase: true}
	dirs := &completer.FilePathCompleter{
		IgnoreCase: true,
		Filter:     func(fi os.FileInfo) bool { return fi.IsDir() },
	}
	return &Selector{
		ask:   ask,
		files: files.Complete,
		dirs:  dirs.Complete,
	}
}

// Select asks whether a database already exists and, if not, for the ask
// price file, the bid price file and the directory of further price files.
// Every path answer may be left empty.
func (s *Selector) Select() (Selection, error) {
	var sel Selection

	existing, err := s.yesNo("Is there an existing database? [y/N] ")
	if err != nil {
		return sel, err
	}
	if existing {
		sel.ExistingDB = true
		return sel, nil
	}

	if sel.AskFile, err = s.path("Ask price file: ", s.files, false); err != nil {
		return sel, err
	}
	if sel.BidFile, err = s.path("Bid price file: ", s.files, false); err != nil {
		return sel, err
	}
	if sel.PriceDir, err = s.path("Price directory: ", s.dirs, true); err != nil {
		return sel, err
	}
	return sel, nil
}

// Apply maps the selected files onto cfg.
func (sel Selection) Apply(cfg *config.Config) {
	if sel.AskFile != "" {
		cfg.MapFile("askPrices", sel.AskFile)
	}
	if sel.BidFile != "" {
		cfg.MapFile("bidPrices", sel.BidFile)
	}
	if sel.PriceDir != "" {
		cfg.Ingest.InputDir = sel.PriceDir
	}
}

func (s *Selector) yesNo(question string) (bool, error) {
	for i := 0; i < maxTries; i++ {
		if v, ok := ParseYesNo(s.ask(question, noCompletion)); ok {
			return v, nil
		}
	}
	return false, errors.NewValidation("answer", "expected yes or no")
}

func (s *Selector) path(question string, c goprompt.Completer, dir bool) (string, error) {
	for i := 0; i < maxTries; i++ {
		p := CleanPath(s.ask(question, c))
		if p == "" {
			return "", nil
		}
		info, err := os.Stat(p)
		if err == nil && info.IsDir() == dir {
			return p, nil
		}
		fmt.Fprintf(os.Stderr, "%s: not a %s\n", p, kind(dir))
	}
	return "", fmt.Errorf("%s%w", question, errors.ErrMissingInput)
}

func kind(dir bool) string {
	if dir {
		return "directory"
	}
	return "file"
}

// ParseYesNo interprets an answer. An empty answer means no.
func ParseYesNo(answer string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, true
	case "", "n", "no":
		return false, true
	default:
		return false, false
	}
}

// CleanPath strips surrounding quotes and whitespace from a typed path and
// expands a leading ~.
func CleanPath(answer string) string {
	p := strings.TrimSpace(answer)
	p = strings.Trim(p, `"'`)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}

func noCompletion(goprompt.Document) []goprompt.Suggest {
	return nil
}
