package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

// ruleView is the serializable face of a diagnostic rule; the match
// predicate itself is code and not exported.
type ruleView struct {
	Name         string `json:"name"`
	When         string `json:"when"`
	PrimaryIssue string `json:"primary_issue"`
	RootCause    string `json:"root_cause"`
	Urgency      string `json:"urgency"`
}

func describeRules(env *pipelineEnv) []ruleView {
	rules := env.Engine.Rules()
	views := make([]ruleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, ruleView{
			Name:         r.Name,
			When:         r.When,
			PrimaryIssue: r.Outcome.PrimaryIssue,
			RootCause:    r.Outcome.RootCause,
			Urgency:      string(r.Outcome.Urgency),
		})
	}
	return views
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the ordered diagnostic rule table",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(describeRules(env))
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
