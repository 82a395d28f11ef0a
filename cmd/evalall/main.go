package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"parkeval-service/internal/config"
	"parkeval-service/internal/evaluation"
	"parkeval-service/internal/loader"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, `Usage:
  evalall -root DIR [-out eval_all.csv] [-first]
  evalall -root DIR -labels [-out label_all.csv]`)
}

func main() {
	root := flag.String("root", "", "directory searched recursively for session results")
	out := flag.String("out", "", "output file (default eval_all.csv, or label_all.csv with -labels)")
	first := flag.Bool("first", false, "merge the first-frame column instead of the all-frames column")
	labels := flag.Bool("labels", false, "concatenate label.csv files instead of eval.csv")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	if *root == "" {
		printHelp()
		os.Exit(2)
	}
	log := config.NewLogger(config.LogConfig{Level: *level})

	if *labels {
		path := *out
		if path == "" {
			path = filepath.Join(*root, "label_all.csv")
		}
		if err := mergeLabels(*root, path); err != nil {
			log.Fatal().Err(err).Msg("label merge failed")
		}
		log.Info().Str("path", path).Msg("label tables merged")
		return
	}

	path := *out
	if path == "" {
		path = filepath.Join(*root, "eval_all.csv")
	}
	n, err := mergeReports(*root, path, *first)
	if err != nil {
		log.Fatal().Err(err).Msg("eval merge failed")
	}
	log.Info().Str("path", path).Int("sessions", n).Bool("first", *first).Msg("reports merged")
}

func mergeReports(root, out string, first bool) (int, error) {
	paths, err := loader.FindFiles(root, loader.EvalFileName)
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no %s under %s", loader.EvalFileName, root)
	}

	reports := make([]evaluation.NamedReport, 0, len(paths))
	for _, p := range paths {
		r, err := loader.ReadReportFile(p)
		if err != nil {
			return 0, err
		}
		reports = append(reports, evaluation.NamedReport{Name: filepath.Base(filepath.Dir(p)), Report: r})
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	if err := loader.WriteMergedTable(f, evaluation.Merge(reports, first)); err != nil {
		f.Close()
		return 0, err
	}
	return len(reports), f.Close()
}

func mergeLabels(root, out string) error {
	paths, err := loader.FindFiles(root, loader.LabelFileName)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no %s under %s", loader.LabelFileName, root)
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := loader.MergeLabelFiles(f, paths); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
