package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/drove/internal/attack/scripted"
	"github.com/wesleyorama2/drove/internal/config"
	"github.com/wesleyorama2/drove/internal/output"
)

func newValidateCmd() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "validate <attack-file>",
		Short: "Check an attack file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func runValidate(cmd *cobra.Command, path string, noColor bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.LoadConfig(path)
	if err == nil {
		config.ApplyDefaults(cfg)
		err = cfg.Validate()
	}
	if err == nil {
		_, err = scripted.Build(cfg)
	}
	if err != nil {
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs.Errors {
				fmt.Fprintf(out, "%s %s\n", output.ErrorIcon(noColor), e.Error())
			}
			return fmt.Errorf("%s: %d validation errors", path, len(verrs.Errors))
		}
		fmt.Fprintf(out, "%s %v\n", output.ErrorIcon(noColor), err)
		return fmt.Errorf("%s is not valid", path)
	}

	tasks := 0
	for _, ts := range cfg.TaskSets {
		tasks += len(ts.Tasks)
	}
	fmt.Fprintf(out, "%s %s is valid: %d task sets, %d tasks\n", output.SuccessIcon(noColor), path, len(cfg.TaskSets), tasks)
	return nil
}
