// Package keywords holds the ScheduleKeywords configuration table (spec
// §3) behind a reader-writer guard, reloaded on worker start and whenever
// its backing file changes (spec §5: "Read-mostly config ... held behind
// a reader-writer guard and reloaded atomically on refresh").
package keywords

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ScheduleType enumerates the fact types a keyword applies to.
type ScheduleType string

const (
	Reconciliation ScheduleType = "ReconciliationSchedule"
	Adoration      ScheduleType = "AdorationSchedule"
	Mass           ScheduleType = "MassSchedule"
)

// Keyword is one row of the ScheduleKeywords table.
type Keyword struct {
	ScheduleType ScheduleType `yaml:"schedule_type"`
	Keyword      string       `yaml:"keyword"`
	Negative     bool         `yaml:"negative"`
}

type fileFormat struct {
	Keywords []Keyword `yaml:"keywords"`
}

// defaultKeywords seeds a sensible table when no file is configured, so a
// fresh deployment still does useful keyword scoring (spec §4.E)
// and keyword-based extraction (SPEC_FULL.md §3) out of the box.
func defaultKeywords() []Keyword {
	return []Keyword{
		{Mass, "mass schedule", false},
		{Mass, "mass times", false},
		{Mass, "weekend mass", false},
		{Reconciliation, "confession", false},
		{Reconciliation, "reconciliation", false},
		{Reconciliation, "penance", false},
		{Adoration, "adoration", false},
		{Adoration, "holy hour", false},
		{Mass, "cancelled", true},
		{Mass, "suspended", true},
		{Reconciliation, "no confessions", true},
	}
}

// Table is the reader-writer-guarded, hot-reloadable ScheduleKeywords
// store. One Table is shared by the frontier's scorer, the AI gate's
// threshold, and the keyword-based extraction method.
type Table struct {
	path    string
	logger  *logrus.Entry
	current atomic.Pointer[[]Keyword]
	watcher *fsnotify.Watcher
	mu      sync.Mutex // serializes reload attempts
}

// Load constructs a Table from path (if non-empty) or the built-in
// defaults, and starts watching path for changes when one was given.
func Load(path string, logger *logrus.Logger) (*Table, error) {
	if logger == nil {
		logger = logrus.New()
	}
	t := &Table{path: path, logger: logger.WithField("component", "keywords")}

	kws, err := t.read()
	if err != nil {
		return nil, err
	}
	t.current.Store(&kws)

	if path != "" {
		if err := t.watch(); err != nil {
			// Watching is best-effort: a table that can't watch its file
			// still serves its initially-loaded keywords correctly.
			t.logger.WithError(err).Warn("could not watch keyword file for changes")
		}
	}
	return t, nil
}

func (t *Table) read() ([]Keyword, error) {
	if t.path == "" {
		return defaultKeywords(), nil
	}
	data, err := os.ReadFile(t.path)
	if err != nil {
		return nil, err
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, err
	}
	return ff.Keywords, nil
}

func (t *Table) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(t.path); err != nil {
		w.Close()
		return err
	}
	t.watcher = w
	go t.watchLoop()
	return nil
}

func (t *Table) watchLoop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.Reload()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.WithError(err).Warn("keyword watcher error")
		}
	}
}

// Reload re-reads the backing file and atomically swaps the in-memory
// table. A failed reload leaves the previous table in effect.
func (t *Table) Reload() {
	t.mu.Lock()
	defer t.mu.Unlock()

	kws, err := t.read()
	if err != nil {
		t.logger.WithError(err).Error("failed to reload schedule keywords; keeping previous table")
		return
	}
	t.current.Store(&kws)
	t.logger.WithField("count", len(kws)).Info("reloaded schedule keywords")
}

// Close stops the file watcher, if any.
func (t *Table) Close() {
	if t.watcher != nil {
		t.watcher.Close()
	}
}

// All returns the full keyword table.
func (t *Table) All() []Keyword {
	p := t.current.Load()
	if p == nil {
		return nil
	}
	return *p
}

// PositiveTokens returns every non-negative keyword across all schedule
// types, as counted by CountMatches. The frontier's URL relevance filter
// does not read them; it matches paths against its own fixed token list.
func (t *Table) PositiveTokens() []string {
	var out []string
	for _, k := range t.All() {
		if !k.Negative {
			out = append(out, k.Keyword)
		}
	}
	return out
}

// CountMatches counts how many distinct positive keywords occur in text
// (case-insensitive), used by the AI gate's adaptive threshold (spec §4.F:
// "-5 if the page contains >= 3 schedule keywords").
func (t *Table) CountMatches(text string) int {
	lower := strings.ToLower(text)
	count := 0
	for _, tok := range t.PositiveTokens() {
		if strings.Contains(lower, strings.ToLower(tok)) {
			count++
		}
	}
	return count
}

// MatchResult describes a keyword-based extraction attempt's outcome for
// one fact type (SPEC_FULL.md §3's keyword-extraction success semantics).
type MatchResult struct {
	FactType ScheduleType
	Matched  bool
	Sentence string
}

// ExtractByKeyword scans text sentence-by-sentence (split on '.', '!',
// '?', newlines) for scheduleType's positive keywords, rejecting any
// sentence that also contains one of that type's negative keywords. This
// resolves spec §9's open question: a keyword-based extraction is
// "successful" iff at least one sentence matches a positive keyword with
// no negative keyword of the same schedule type in that same sentence.
func (t *Table) ExtractByKeyword(text string, scheduleType ScheduleType) MatchResult {
	var positives, negatives []string
	for _, k := range t.All() {
		if k.ScheduleType != scheduleType {
			continue
		}
		if k.Negative {
			negatives = append(negatives, strings.ToLower(k.Keyword))
		} else {
			positives = append(positives, strings.ToLower(k.Keyword))
		}
	}

	for _, sentence := range splitSentences(text) {
		lower := strings.ToLower(sentence)
		hasPositive := false
		for _, p := range positives {
			if strings.Contains(lower, p) {
				hasPositive = true
				break
			}
		}
		if !hasPositive {
			continue
		}
		hasNegative := false
		for _, n := range negatives {
			if strings.Contains(lower, n) {
				hasNegative = true
				break
			}
		}
		if !hasNegative {
			return MatchResult{FactType: scheduleType, Matched: true, Sentence: strings.TrimSpace(sentence)}
		}
	}
	return MatchResult{FactType: scheduleType, Matched: false}
}

func splitSentences(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
}
