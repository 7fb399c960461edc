package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/c-bata/go-prompt"

	"harshagw/relevance/internal/config"
	"harshagw/relevance/internal/index"
	"harshagw/relevance/internal/metrics"
	"harshagw/relevance/internal/norm"
	"harshagw/relevance/internal/search"
)

type REPL struct {
	idx     *index.Index
	cfg     *config.Config
	metrics *metrics.Metrics
	quit    bool
}

// errUsage makes the shell print the usage line of the failed command.
var errUsage = errors.New("usage")

// command is one shell command. args are the whitespace-separated words
// after the name and rest is the raw text after it.
type command struct {
	name  string
	usage string
	desc  string
	run   func(r *REPL, args []string, rest string) error
}

var commands []command

func init() {
	commands = []command{
		{"index", "index [--boost=B] <docID> <json>", "Add a document with index-time boost B", (*REPL).cmdIndex},
		{"delete", "delete <docID>", "Mark a document as deleted", (*REPL).cmdDelete},
		{"flush", "flush", "Write the in-memory documents to a segment", (*REPL).cmdFlush},
		{"merge", "merge", "Merge all segments, dropping deleted docs", (*REPL).cmdMerge},
		{"search", "search <query>", `Ranked search, e.g. title:go^2 AND "garbage collection"`, (*REPL).cmdSearch},
		{"explain", "explain [--field=F] <docID> <text>", "Explain the score of a term or phrase", (*REPL).cmdExplain},
		{"similarity", "similarity [model] [k1=..] [b=..] [d=..]", "Show or switch the similarity", (*REPL).cmdSimilarity},
		{"norm", "norm <length> [boost]", "Show the norm byte of a field length", (*REPL).cmdNorm},
		{"segments", "segments", "List all segments", (*REPL).cmdSegments},
		{"segment", "segment <id> stats", "Show segment details", (*REPL).cmdSegment},
		{"doc", "doc <segment> <docNum>", "Load a stored document", (*REPL).cmdDoc},
		{"dump", "dump postings <field> <term> | dump deletions <segment>", "Show postings with norms, or deletions", (*REPL).cmdDump},
		{"help", "help", "Show this help", func(*REPL, []string, string) error { printHelp(); return nil }},
		{"quit", "quit", "Exit", (*REPL).cmdQuit},
	}
}

func lookupCommand(name string) (command, bool) {
	if name == "exit" {
		name = "quit"
	}
	i := slices.IndexFunc(commands, func(c command) bool { return c.name == name })
	if i < 0 {
		return command{}, false
	}
	return commands[i], true
}

func printHelp() {
	fmt.Println("Commands:")
	for _, c := range commands {
		fmt.Printf("  %-44s %s\n", c.usage, c.desc)
	}
}

func suggestions() []prompt.Suggest {
	s := make([]prompt.Suggest, len(commands))
	for i, c := range commands {
		s[i] = prompt.Suggest{Text: c.name, Description: c.desc}
	}
	return s
}

func (r *REPL) executor(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	c, ok := lookupCommand(name)
	if !ok {
		fmt.Printf("Unknown command: %s\n", name)
		return
	}
	err := c.run(r, strings.Fields(rest), rest)
	switch {
	case errors.Is(err, errUsage):
		fmt.Printf("Usage: %s\n", c.usage)
	case err != nil:
		fmt.Printf("Error: %v\n", err)
	}
}

func (r *REPL) cmdQuit([]string, string) error {
	fmt.Println("Goodbye!")
	r.quit = true
	return nil
}

func (r *REPL) cmdIndex(_ []string, rest string) error {
	boost := float32(1)
	if b, ok := strings.CutPrefix(rest, "--boost="); ok {
		value, after, _ := strings.Cut(b, " ")
		f, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("invalid boost: %w", err)
		}
		boost = float32(f)
		rest = strings.TrimSpace(after)
	}

	docID, body, ok := strings.Cut(rest, " ")
	if !ok || docID == "" {
		return errUsage
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	if err := r.idx.IndexWithBoost(docID, doc, boost); err != nil {
		return err
	}
	fmt.Printf("Indexed '%s' (%d fields)\n", docID, len(doc))
	return nil
}

func (r *REPL) cmdDelete(args []string, _ string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := r.idx.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted '%s'\n", args[0])
	return nil
}

func (r *REPL) cmdFlush([]string, string) error {
	if err := r.idx.Flush(); err != nil {
		return err
	}
	fmt.Printf("Flushed. %d segments.\n", r.idx.NumSegments())
	return nil
}

func (r *REPL) cmdMerge([]string, string) error {
	if err := r.idx.ForceMerge(); err != nil {
		return err
	}
	fmt.Printf("Merged. %d segments.\n", r.idx.NumSegments())
	return nil
}

// withSearcher runs fn over a searcher on a fresh snapshot.
func (r *REPL) withSearcher(fn func(*search.Searcher) error) error {
	snap, err := r.idx.Snapshot()
	if err != nil {
		return err
	}
	defer snap.Close()
	s := search.New(snap, search.WithMetrics(r.metrics))
	defer s.Close()
	return fn(s)
}

func (r *REPL) cmdSearch(_ []string, query string) error {
	if query == "" {
		return errUsage
	}
	return r.withSearcher(func(s *search.Searcher) error {
		results, err := s.RunQueryString(query)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Printf("No results for %s\n", query)
			return nil
		}
		fmt.Printf("Found %d results for %s [%s]:\n", len(results), query, s.Model())
		for _, res := range results {
			fmt.Printf("  %s (%.4f) %v\n", res.DocID, res.Score, res.MatchedTerms)
		}
		return nil
	})
}

func (r *REPL) cmdExplain(args []string, _ string) error {
	field := ""
	if len(args) > 0 {
		if f, ok := strings.CutPrefix(args[0], "--field="); ok {
			field, args = f, args[1:]
		}
	}
	if len(args) < 2 {
		return errUsage
	}
	return r.withSearcher(func(s *search.Searcher) error {
		e, err := s.Explain(strings.Join(args[1:], " "), field, args[0], 1)
		if err != nil {
			return err
		}
		fmt.Print(e.String())
		return nil
	})
}

// parseSimilarityArgs applies a model name and key=value parameters to a
// copy of base. A model switch drops an explicit d, whose range depends
// on the model.
func parseSimilarityArgs(base config.SimilarityConfig, args []string) (config.SimilarityConfig, error) {
	sc := base
	sc.Model = args[0]
	sc.D = nil
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		f, err := strconv.ParseFloat(value, 32)
		if !ok || err != nil {
			return sc, fmt.Errorf("invalid parameter %q, want key=number", kv)
		}
		switch key {
		case "k1":
			sc.K1 = float32(f)
		case "b":
			sc.B = float32(f)
		case "d":
			d := float32(f)
			sc.D = &d
		default:
			return sc, fmt.Errorf("unknown parameter %q", key)
		}
	}
	if _, err := sc.Build(); err != nil {
		return sc, err
	}
	return sc, nil
}

// cmdSimilarity shows the active model, or reopens the index with another
// one. Every model reads the same norm encoding, so existing segments stay
// valid.
func (r *REPL) cmdSimilarity(args []string, _ string) error {
	if len(args) > 0 {
		sc, err := parseSimilarityArgs(r.cfg.Similarity, args)
		if err != nil {
			return err
		}
		previous := r.cfg.Similarity
		r.close()
		if err := r.open(sc); err != nil {
			if reopenErr := r.open(previous); reopenErr != nil {
				r.quit = true
				return errors.Join(err, fmt.Errorf("reopening index: %w", reopenErr))
			}
			return err
		}
	}
	fmt.Printf("Similarity: %s\n", r.idx.Model())
	return nil
}

func (r *REPL) cmdNorm(args []string, _ string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	length, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid length: %w", err)
	}
	boost := float32(1)
	if len(args) > 1 {
		f, err := strconv.ParseFloat(args[1], 32)
		if err != nil {
			return fmt.Errorf("invalid boost: %w", err)
		}
		boost = float32(f)
	}

	b := norm.Encode(uint32(length), boost)
	exact := ""
	if norm.IsExact(b) {
		exact = " (exact)"
	}
	fmt.Printf("norm byte %d decodes to length %g%s\n", b, norm.Decode(b), exact)
	return nil
}

func (r *REPL) cmdSegments([]string, string) error {
	segs := r.idx.Segments()
	if len(segs) == 0 {
		fmt.Println("No segments")
		return nil
	}
	fmt.Printf("%d segments:\n", len(segs))
	for _, seg := range segs {
		fmt.Printf("  %s: %d docs, %d bytes, %s\n", seg.ID, seg.NumDocs, seg.Size, seg.Similarity)
	}
	return nil
}

func (r *REPL) cmdSegment(args []string, _ string) error {
	if len(args) != 2 || args[1] != "stats" {
		return errUsage
	}
	stats, err := r.idx.SegmentStats(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Segment %s: %d docs, %d deleted\n", args[0], stats.NumDocs, stats.NumDeleted)
	fields := make([]string, 0, len(stats.Fields))
	for field := range stats.Fields {
		fields = append(fields, field)
	}
	slices.Sort(fields)
	for _, field := range fields {
		fs := stats.Fields[field]
		fmt.Printf("  %s: docCount=%d sumTotalTermFreq=%d\n", field, fs.DocCount, fs.SumTotalTermFreq)
	}
	return nil
}

func (r *REPL) cmdDoc(args []string, _ string) error {
	if len(args) != 2 {
		return errUsage
	}
	docNum, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid docNum: %w", err)
	}
	doc, err := r.idx.LoadDoc(args[0], docNum)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func (r *REPL) cmdDump(args []string, _ string) error {
	switch {
	case len(args) == 3 && args[0] == "postings":
		return r.dumpPostings(args[1], args[2])
	case len(args) == 2 && args[0] == "deletions":
		return r.dumpDeletions(args[1])
	}
	return errUsage
}

func (r *REPL) dumpPostings(field, term string) error {
	postings, err := r.idx.DumpPostings(field, term)
	if err != nil {
		return err
	}
	if len(postings) == 0 {
		fmt.Printf("No postings for %s:%s\n", field, term)
		return nil
	}
	fmt.Printf("Postings for %s:%s (%d docs):\n", field, term, len(postings))
	for _, p := range postings {
		fmt.Printf("  seg=%s doc=%d freq=%d norm=%d (dl=%g) pos=%v\n",
			p.SegmentID, p.DocNum, p.Freq, p.Norm, norm.Decode(p.Norm), p.Positions)
	}
	return nil
}

func (r *REPL) dumpDeletions(segID string) error {
	deleted, err := r.idx.DumpDeletions(segID)
	if err != nil {
		return err
	}
	if len(deleted) == 0 {
		fmt.Printf("No deletions in segment %s\n", segID)
		return nil
	}
	fmt.Printf("Deletions in %s: %v\n", segID, deleted)
	return nil
}
