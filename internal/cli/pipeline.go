package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/stagehand/internal/engine"
	"github.com/shaiso/stagehand/internal/steps"
)

// stageRow — стадия скомпилированного pipeline для вывода.
type stageRow struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Kind     string `json:"kind"`
	Step     string `json:"step,omitempty"`
	Guard    string `json:"guard,omitempty"`
}

// compiledPipeline — результат validate в JSON.
type compiledPipeline struct {
	Name        string     `json:"name"`
	Fingerprint string     `json:"fingerprint"`
	Permissions []string   `json:"permissions,omitempty"`
	Stages      []stageRow `json:"stages"`
}

// NewValidateCmd создаёт команду проверки pipeline.
func NewValidateCmd(registryFn func() *steps.Registry, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Compile a pipeline and show its stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := compileFile(args[0], registryFn())
			if err != nil {
				return err
			}

			result := describe(p)
			headers := []string{"STAGE", "PARENT", "KIND", "STEP", "GUARD"}
			rows := make([][]string, len(result.Stages))
			for i, s := range result.Stages {
				rows[i] = []string{s.ID, s.ParentID, s.Kind, s.Step, s.Guard}
			}

			out.Print(headers, rows, result)
			out.Success(fmt.Sprintf("Pipeline %s is valid: %d stages, fingerprint %s",
				p.Name, p.Len(), shortFingerprint(p.Fingerprint())))
			return nil
		},
	}
}

// NewFingerprintCmd создаёт команду вывода отпечатка pipeline.
func NewFingerprintCmd(registryFn func() *steps.Registry, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint FILE",
		Short: "Print the structural fingerprint of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			p, err := compileFile(args[0], registryFn())
			if err != nil {
				return err
			}

			if out.JSONMode() {
				out.JSON(map[string]string{"name": p.Name, "fingerprint": p.Fingerprint()})
				return nil
			}
			fmt.Fprintln(out.w, p.Fingerprint())
			return nil
		},
	}
}

// NewStepsCmd создаёт команду вывода реестра шагов.
func NewStepsCmd(registryFn func() *steps.Registry, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "steps [NAME]",
		Short: "List registered steps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			registry := registryFn()

			all := registry.Steps()
			if len(args) == 1 {
				all = filterSteps(all, args[0])
				if len(all) == 0 {
					return fmt.Errorf("%w: %s", steps.ErrStepNotFound, args[0])
				}
			}

			headers := []string{"NAME", "VERSION", "CAPABILITIES", "PARAMS", "DESCRIPTION"}
			rows := make([][]string, len(all))
			for i, s := range all {
				rows[i] = []string{
					s.Name,
					s.Version.String(),
					strings.Join(s.Capabilities, ","),
					strings.Join(s.Schema.Names(), ","),
					s.Description,
				}
			}

			out.Print(headers, rows, stepsJSON(all))
			return nil
		},
	}
}

// describe собирает стадии pipeline в порядке обхода.
func describe(p *engine.Pipeline) compiledPipeline {
	result := compiledPipeline{
		Name:        p.Name,
		Fingerprint: p.Fingerprint(),
		Permissions: p.Permissions,
		Stages:      make([]stageRow, 0, p.Len()),
	}

	for _, id := range p.StageIDs() {
		n, _ := p.Node(id)
		row := stageRow{ID: n.ID, ParentID: n.ParentID, Kind: string(n.Kind)}
		if n.Invocation != nil {
			row.Step = n.Invocation.Step.Ref()
		}
		if n.Guard != nil {
			row.Guard = n.Guard.String()
		}
		result.Stages = append(result.Stages, row)
	}
	return result
}

func filterSteps(all []*steps.Step, name string) []*steps.Step {
	var result []*steps.Step
	for _, s := range all {
		if s.Name == name {
			result = append(result, s)
		}
	}
	return result
}

func stepsJSON(all []*steps.Step) []map[string]any {
	result := make([]map[string]any, len(all))
	for i, s := range all {
		result[i] = map[string]any{
			"name":         s.Name,
			"version":      s.Version.String(),
			"capabilities": s.Capabilities,
			"description":  s.Description,
			"params":       s.Schema,
		}
	}
	return result
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
