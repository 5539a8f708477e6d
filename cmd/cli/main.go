package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/himanishpuri/HarmonicDNA/internal/export"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/eval"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/piece"
	"github.com/himanishpuri/HarmonicDNA/pkg/harmonic/vocab"
	"github.com/himanishpuri/HarmonicDNA/pkg/logger"
	"github.com/himanishpuri/HarmonicDNA/pkg/utils"
)

// Global flags
var (
	dbPath      string
	beamWidth   int
	pruneMargin float64
	minLen      int
	minKeyLen   int
	maxChord    float64
	minChange   float64
	maxNoChange float64
	workers     int
	ruleName    string
	logLevel    string
	noOnsets    bool
)

func init() {
	// Global flags that can be used with any command
	flag.StringVar(&dbPath, "db", getEnvOrDefault("HARMONIC_DB_PATH", harmonic.DefaultDBFile), "Path to the SQLite database file")
	flag.IntVar(&beamWidth, "beam", getEnvInt("HARMONIC_BEAM_WIDTH", 100), "Beam width (hypotheses kept per frame)")
	flag.Float64Var(&pruneMargin, "margin", getEnvFloat("HARMONIC_PRUNE_MARGIN", 25), "Prune hypotheses this far (natural log) below the best; inf disables")
	flag.IntVar(&minLen, "min-len", getEnvInt("HARMONIC_MIN_SEGMENT", 1), "Minimum chord segment length in frames")
	flag.IntVar(&minKeyLen, "min-key-len", getEnvInt("HARMONIC_MIN_KEY", 1), "Minimum key segment length in frames")
	flag.Float64Var(&maxChord, "max-chord", getEnvFloat("HARMONIC_MAX_CHORD", 0), "Maximum chord duration in quarter notes (0 = unlimited)")
	flag.Float64Var(&minChange, "min-change", getEnvFloat("HARMONIC_MIN_CHANGE", 0.5), "Chord boundaries only where the change probability exceeds this")
	flag.Float64Var(&maxNoChange, "max-no-change", getEnvFloat("HARMONIC_MAX_NO_CHANGE", 0.5), "Chords continue only where the change probability is at most this")
	flag.IntVar(&workers, "workers", getEnvInt("HARMONIC_WORKERS", 0), "Goroutines expanding one beam (0 = GOMAXPROCS)")
	flag.StringVar(&ruleName, "rule", getEnvOrDefault("HARMONIC_RULE", "diatonic"), "Chord validity rule: all or diatonic")
	flag.StringVar(&logLevel, "log", getEnvOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.BoolVar(&noOnsets, "no-onsets", false, "Allow boundaries between frames that share an onset")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return defaultValue
}

// createService creates a new HarmonicDNA service with configured options
func createService() (harmonic.Service, error) {
	rule, err := vocab.RuleByName(ruleName)
	if err != nil {
		return nil, err
	}
	opts := []harmonic.Option{
		harmonic.WithDBPath(dbPath),
		harmonic.WithBeamWidth(beamWidth),
		harmonic.WithPruneMargin(pruneMargin),
		harmonic.WithMinSegmentLength(minLen),
		harmonic.WithMinKeyLength(minKeyLen),
		harmonic.WithMaxChordDuration(maxChord),
		harmonic.WithChangeGates(minChange, maxNoChange),
		harmonic.WithAlignOnsets(!noOnsets),
		harmonic.WithRule(rule),
	}
	if workers > 0 {
		opts = append(opts, harmonic.WithWorkers(workers))
	}
	return harmonic.NewService(opts...)
}

func mustService() harmonic.Service {
	svc, err := createService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to create service: %v\n", err)
		logger.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	return svc
}

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if level, err := logger.ParseLevel(logLevel); err == nil {
		logger.SetLevel(level)
	}
	log := logger.GetLogger()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch command {
	case "annotate":
		handleAnnotate(ctx, args)
	case "evaluate":
		handleEvaluate(ctx, args)
	case "list":
		handleList()
	case "show":
		handleShow(args)
	case "delete":
		handleDelete(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 _   _                                  _      ____  _   _    _
| | | | __ _ _ __ _ __ ___   ___  _ __ (_) ___|  _ \| \ | |  / \
| |_| |/ _' | '__| '_ ' _ \ / _ \| '_ \| |/ __| | | |  \| | / _ \
|  _  | (_| | |  | | | | | | (_) | | | | | (__| |_| | |\  |/ ___ \
|_| |_|\__,_|_|  |_| |_| |_|\___/|_| |_|_|\___|____/|_| \_/_/   \_\

           Joint Key and Chord Annotation CLI
`
	fmt.Fprintln(os.Stderr, banner)
}

// splitArgs separates positional arguments from flags so flags may follow
// file names, e.g. "annotate a.json b.json --store".
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleAnnotate(ctx context.Context, args []string) {
	log := logger.GetLogger()

	files, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("annotate", flag.ExitOnError)
	store := cmd.Bool("store", false, "Store the analysis in the database")
	format := cmd.String("format", "table", "Output format: table, json or rntxt")
	out := cmd.String("out", "", "Write output to this file instead of stdout")
	meter := cmd.Int("meter", 4, "Beats per measure for rntxt output")
	cmd.Parse(flagArgs)
	files = append(files, cmd.Args()...)

	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: harmonicDNA annotate <piece.json>... [--store] [--format table|json|rntxt] [--out file]")
		os.Exit(1)
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	if f == export.FormatTable {
		printBanner()
	}

	pieces := make([]*piece.Piece, 0, len(files))
	for _, path := range files {
		doc, err := piece.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to read %s: %v\n", path, err)
			log.Errorf("Reading piece failed: %v", err)
			os.Exit(1)
		}
		pieces = append(pieces, doc.Piece)
	}

	svc := mustService()
	defer svc.Close()

	start := time.Now()
	var items []harmonic.BatchItem
	if len(pieces) == 1 {
		var a *harmonic.Analysis
		if *store {
			a, err = svc.AnnotateAndStore(ctx, pieces[0])
		} else {
			a, err = svc.Annotate(ctx, pieces[0])
		}
		items = []harmonic.BatchItem{{PieceID: pieces[0].ID, Analysis: a, Err: err}}
	} else {
		items = svc.AnnotateBatch(ctx, pieces, *store)
	}

	var buf bytes.Buffer
	failed := 0
	for i, item := range items {
		if item.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "❌ %s: %v\n", files[i], item.Err)
			continue
		}
		doc := export.Document{Analysis: item.Analysis, Frames: pieces[i].Frames, BeatsPerMeasure: *meter}
		if f == export.FormatTable {
			printSummary(&buf, item.Analysis)
		}
		if err := export.Write(&buf, f, doc); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to render %s: %v\n", files[i], err)
			os.Exit(1)
		}
	}

	if err := emit(*out, buf.Bytes()); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	if f == export.FormatTable || *out != "" {
		fmt.Fprintf(os.Stderr, "\n✅ Annotated %d of %d piece(s) in %s\n",
			len(items)-failed, len(items), time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func printSummary(buf *bytes.Buffer, a *harmonic.Analysis) {
	fmt.Fprintf(buf, "\n🎼 %s", a.PieceID)
	if a.Title != "" {
		fmt.Fprintf(buf, " (%s)", a.Title)
	}
	fmt.Fprintln(buf)
	if a.ID != "" {
		fmt.Fprintf(buf, "   ID:        %s\n", a.ID)
	}
	fmt.Fprintf(buf, "   Frames:    %s\n", humanize.Comma(int64(a.FrameCount)))
	fmt.Fprintf(buf, "   Segments:  %d in %d key region(s)\n", len(a.Segments), len(a.KeySpans()))
	fmt.Fprintf(buf, "   Log prob:  %.4f\n", a.LogProb)
	if st := a.Stats; st != nil {
		cache := st.Cache.Total()
		fmt.Fprintf(buf, "   Search:    %s candidates, %s pruned, peak beam %s, %s\n",
			humanize.Comma(int64(st.Generated)), humanize.Comma(int64(st.Pruned)),
			humanize.Comma(int64(st.PeakBeam)), st.Elapsed.Round(time.Millisecond))
		fmt.Fprintf(buf, "   Cache:     %s hits, %s misses\n",
			humanize.Comma(int64(cache.Hits)), humanize.Comma(int64(cache.Misses)))
	}
	fmt.Fprintln(buf)
}

func emit(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := utils.WriteFileAtomic(path, data); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "💾 Wrote %s to %s\n", humanize.Bytes(uint64(len(data))), path)
	return nil
}

func handleEvaluate(ctx context.Context, args []string) {
	log := logger.GetLogger()

	files, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("evaluate", flag.ExitOnError)
	ignoreInv := cmd.Bool("ignore-inversion", false, "Compare chords without inversion")
	tonicOnly := cmd.Bool("tonic-only", false, "Compare keys by tonic only")
	tolerance := cmd.Int("tolerance", 0, "Boundary tolerance in frames")
	reduceName := cmd.String("reduce", "none", "Chord quality reduction: none, triads or major-minor")
	cmd.Parse(flagArgs)
	files = append(files, cmd.Args()...)

	if len(files) < 1 || len(files) > 2 {
		fmt.Fprintln(os.Stderr, "Usage: harmonicDNA evaluate <piece.json> [labels.json] [--ignore-inversion] [--tonic-only] [--tolerance n] [--reduce name]")
		os.Exit(1)
	}
	reduce, ok := eval.Reductions[*reduceName]
	if !ok {
		fmt.Fprintf(os.Stderr, "❌ Unknown reduction %q (want none, triads or major-minor)\n", *reduceName)
		os.Exit(1)
	}
	printBanner()

	doc, err := piece.ReadFile(files[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to read %s: %v\n", files[0], err)
		os.Exit(1)
	}
	reference := doc.Labels
	if len(files) == 2 {
		reference, err = readLabels(files[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to read labels %s: %v\n", files[1], err)
			os.Exit(1)
		}
	}
	if len(reference) == 0 {
		fmt.Fprintln(os.Stderr, "❌ No reference labels: add \"labels\" to the piece file or pass a labels file")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔍 Annotating and comparing with the reference...")
	ev, err := svc.Evaluate(ctx, doc.Piece, reference, eval.Options{
		IgnoreInversion: *ignoreInv,
		TonicOnly:       *tonicOnly,
		Tolerance:       *tolerance,
		Reduce:          reduce,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\n❌ Evaluation failed: %v\n", err)
		log.Errorf("Evaluate failed: %v", err)
		os.Exit(1)
	}

	r := ev.Report
	fmt.Printf("\n📊 %s: %s frames, %.1f beats\n\n", doc.Piece.ID, humanize.Comma(int64(r.Frames)), r.Duration)
	fmt.Printf("   Chord accuracy:   %6.2f%%\n", 100*r.ChordAccuracy)
	fmt.Printf("   Key accuracy:     %6.2f%%\n", 100*r.KeyAccuracy)
	fmt.Printf("   Joint accuracy:   %6.2f%%\n", 100*r.JointAccuracy)
	fmt.Printf("   Chord boundaries: P %.3f  R %.3f  F1 %.3f (%d predicted, %d reference)\n",
		r.Chord.Precision, r.Chord.Recall, r.Chord.F1, r.Chord.Predicted, r.Chord.Reference)
	fmt.Printf("   Key boundaries:   P %.3f  R %.3f  F1 %.3f (%d predicted, %d reference)\n",
		r.Key.Precision, r.Key.Recall, r.Key.F1, r.Key.Predicted, r.Key.Reference)
	fmt.Printf("\n   Decoded log prob:   %.4f\n", ev.Analysis.LogProb)
	if math.IsInf(ev.ReferenceLogProb, -1) {
		fmt.Println("   Reference log prob: n/a (labels outside the vocabulary)")
	} else {
		fmt.Printf("   Reference log prob: %.4f\n", ev.ReferenceLogProb)
	}
	if ev.SearchError {
		fmt.Println("\n⚠️  The reference scores higher than the decoded path: try a wider --beam or larger --margin")
	}
}

func readLabels(path string) ([]piece.Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	doc, err := piece.Decode(f)
	if err != nil {
		return nil, err
	}
	return doc.Labels, nil
}

func handleList() {
	log := logger.GetLogger()
	printBanner()

	svc := mustService()
	defer svc.Close()

	analyses, err := svc.ListAnalyses()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to list analyses: %v\n", err)
		log.Errorf("ListAnalyses failed: %v", err)
		os.Exit(1)
	}

	if len(analyses) == 0 {
		fmt.Println("\n📭 No analyses in database")
		return
	}

	fmt.Printf("\n📚 Found %d analys%s:\n\n", len(analyses), plural(len(analyses), "is", "es"))
	for i, a := range analyses {
		title := a.Title
		if title == "" {
			title = a.PieceID
		}
		fmt.Printf("%d. %s (piece %s)\n", i+1, title, a.PieceID)
		fmt.Printf("   ID:       %s\n", a.ID)
		fmt.Printf("   Frames:   %s, %s segments\n", humanize.Comma(int64(a.FrameCount)), humanize.Comma(int64(a.SegmentCount)))
		fmt.Printf("   Log prob: %.4f (%s model)\n", a.LogProb, a.ModelName)
		fmt.Printf("   Created:  %s\n", humanize.Time(a.CreatedAt))
		fmt.Println()
	}
	log.Debugf("Listed %d analyses", len(analyses))
}

func handleShow(args []string) {
	ids, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("show", flag.ExitOnError)
	format := cmd.String("format", "table", "Output format: table, json or rntxt")
	meter := cmd.Int("meter", 4, "Beats per measure for rntxt output")
	cmd.Parse(flagArgs)
	ids = append(ids, cmd.Args()...)

	if len(ids) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: harmonicDNA show <analysis_id> [--format table|json|rntxt]")
		os.Exit(1)
	}
	f, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	a, err := svc.GetAnalysis(ids[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	var buf bytes.Buffer
	if f == export.FormatTable {
		printSummary(&buf, a)
	}
	if err := export.Write(&buf, f, export.Document{Analysis: a, BeatsPerMeasure: *meter}); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	os.Stdout.Write(buf.Bytes())
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: harmonicDNA delete <analysis_id>")
		os.Exit(1)
	}
	id := args[0]
	if !utils.IsUUID(id) {
		fmt.Fprintf(os.Stderr, "❌ Invalid analysis ID: %s\n", id)
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	// Get analysis info before deletion
	a, err := svc.GetAnalysis(id)
	if err != nil {
		if errors.Is(err, harmonic.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "❌ Analysis not found (ID: %s)\n", id)
		} else {
			fmt.Fprintf(os.Stderr, "❌ Failed to load analysis: %v\n", err)
		}
		log.Warnf("Analysis %s not found: %v", id, err)
		os.Exit(1)
	}

	if err := svc.DeleteAnalysis(id); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to delete analysis: %v\n", err)
		log.Errorf("DeleteAnalysis failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Successfully deleted analysis:\n")
	fmt.Printf("   ID:       %s\n", a.ID)
	fmt.Printf("   Piece:    %s\n", a.PieceID)
	fmt.Printf("   Segments: %d\n", len(a.Segments))
	log.Infof("Deleted analysis ID=%s (piece '%s')", a.ID, a.PieceID)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func printUsage() {
	fmt.Println("HarmonicDNA - Joint Key and Chord Annotation CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>          Path to SQLite database (env: HARMONIC_DB_PATH, default: harmonicdna.sqlite3)")
	fmt.Println("  --beam <n>           Beam width (env: HARMONIC_BEAM_WIDTH, default: 100)")
	fmt.Println("  --margin <x>         Prune margin in natural log units, inf disables (env: HARMONIC_PRUNE_MARGIN, default: 25)")
	fmt.Println("  --min-len <n>        Minimum chord segment frames (env: HARMONIC_MIN_SEGMENT, default: 1)")
	fmt.Println("  --min-key-len <n>    Minimum key segment frames (env: HARMONIC_MIN_KEY, default: 1)")
	fmt.Println("  --max-chord <q>      Maximum chord duration in quarter notes (env: HARMONIC_MAX_CHORD, default: 0 = unlimited)")
	fmt.Println("  --min-change <p>     Boundaries only above this change probability (env: HARMONIC_MIN_CHANGE, default: 0.5)")
	fmt.Println("  --max-no-change <p>  Continue only at or below this change probability (env: HARMONIC_MAX_NO_CHANGE, default: 0.5)")
	fmt.Println("  --workers <n>        Expansion goroutines (env: HARMONIC_WORKERS, default: GOMAXPROCS)")
	fmt.Println("  --rule <name>        Chord validity rule: all or diatonic (env: HARMONIC_RULE, default: diatonic)")
	fmt.Println("  --no-onsets          Allow boundaries between frames sharing an onset")
	fmt.Println("  --log <level>        Log level (env: LOG_LEVEL, default: info)")
	fmt.Println("\nUsage:")
	fmt.Println("  harmonicDNA [global-options] annotate <piece.json>... [--store] [--format table|json|rntxt] [--out file] [--meter n]")
	fmt.Println("  harmonicDNA [global-options] evaluate <piece.json> [labels.json] [--ignore-inversion] [--tonic-only] [--tolerance n] [--reduce none|triads|major-minor]")
	fmt.Println("  harmonicDNA [global-options] list")
	fmt.Println("  harmonicDNA [global-options] show <analysis_id> [--format table|json|rntxt]")
	fmt.Println("  harmonicDNA [global-options] delete <analysis_id>")
	fmt.Println("\nExamples:")
	fmt.Println("  # Annotate a piece and keep the result")
	fmt.Println("  harmonicDNA --db analyses.sqlite3 annotate prelude.json --store")
	fmt.Println()
	fmt.Println("  # Roman numeral text with a narrow beam")
	fmt.Println("  harmonicDNA --beam 50 annotate prelude.json --format rntxt --meter 3")
	fmt.Println()
	fmt.Println("  # Search every boundary over the full chord vocabulary (slow)")
	fmt.Println("  harmonicDNA --rule all --min-change 0 --max-no-change 1 annotate prelude.json")
	fmt.Println()
	fmt.Println("  # Score against ground truth stored in the piece file")
	fmt.Println("  harmonicDNA evaluate prelude.json --ignore-inversion --reduce triads")
}
