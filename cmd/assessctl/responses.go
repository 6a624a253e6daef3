package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/governance-platform/assessment/pkg/criteria"
	"github.com/governance-platform/assessment/pkg/evaluation"
)

func (a *app) showResponse(e *evaluation.Evaluation, key string) error {
	if a.structured() {
		return a.printOutput(e)
	}
	k, err := criteria.ParseKey(key)
	if err != nil {
		return err
	}
	r := e.Response(k)
	level := "-"
	if r.Answered() {
		level = strconv.Itoa(r.Level())
	}
	file := "-"
	if r.Evidence != nil {
		file = fmt.Sprintf("%s (%d bytes)", r.Evidence.FileName, r.Evidence.FileSize)
	}
	a.printTable([]string{"Key", "Level", "Comment", "Evidence"}, [][]string{
		{k.String(), level, truncate(r.Comment, 50), file},
	})
	return nil
}

// readEvidence loads path as an inline evidence file.
func readEvidence(path string) (evaluation.Evidence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return evaluation.Evidence{}, err
	}
	fileType := mime.TypeByExtension(filepath.Ext(path))
	if fileType == "" {
		fileType = http.DetectContentType(data)
	}
	return evaluation.Evidence{
		FileName: filepath.Base(path),
		FileSize: int64(len(data)),
		FileType: fileType,
		FileData: "data:" + fileType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func responsePath(id, key, field string) string {
	return evaluationPath(id, "responses", key, field)
}

func newResponsesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "responses",
		Aliases: []string{"resp"},
		Short:   "Answer the criteria of a draft evaluation",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-maturity ID KEY LEVEL",
		Short: "Set the maturity level (0-3) of a criterion",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("level must be an integer: %w", err)
			}
			var e evaluation.Evaluation
			if err := a.client().put(responsePath(args[0], args[1], "maturity"), map[string]int{"level": level}, &e); err != nil {
				return err
			}
			return a.showResponse(&e, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-comment ID KEY TEXT",
		Short: "Set the comment of a criterion; an empty text clears it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().put(responsePath(args[0], args[1], "comment"), map[string]string{"comment": args[2]}, &e); err != nil {
				return err
			}
			return a.showResponse(&e, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "attach ID KEY FILE",
		Short: "Attach an evidence file to a criterion",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := readEvidence(args[2])
			if err != nil {
				return err
			}
			var e evaluation.Evaluation
			if err := a.client().put(responsePath(args[0], args[1], "evidence"), ev, &e); err != nil {
				return err
			}
			return a.showResponse(&e, args[1])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove-evidence ID KEY",
		Short: "Remove the evidence file of a criterion",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var e evaluation.Evaluation
			if err := a.client().delete(responsePath(args[0], args[1], "evidence"), &e); err != nil {
				return err
			}
			return a.showResponse(&e, args[1])
		},
	})
	return cmd
}
