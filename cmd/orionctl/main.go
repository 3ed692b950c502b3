// Command orionctl is the admin CLI for the pending Approval Coordinator
// surface — list, approve, deny, force — speaking to a running orion
// process over its loopback admin HTTP server. Grounded on kcli's cobra
// root-command layout (kcli/internal/cli), trimmed to this tool's much
// smaller surface.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	addr     string
	identity string
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "orionctl",
		Short: "Admin CLI for the orion approval gate",
	}
	root.PersistentFlags().StringVar(&flags.addr, "addr", "http://localhost:8787", "orion admin server address")
	root.PersistentFlags().StringVar(&flags.identity, "identity", os.Getenv("ORIONCTL_IDENTITY"), "admin identity configured in config/admin_identity.yaml's cli_identity")

	root.AddCommand(
		newPendingCommand(flags),
		newApproveCommand(flags),
		newDenyCommand(flags),
		newForceCommand(flags),
	)
	return root
}

func newPendingCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List approval requests awaiting a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodGet, flags.addr+"/approvals/pending", nil)
			if err != nil {
				return err
			}
			return printJSON(body)
		},
	}
}

func newApproveCommand(flags *rootFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "approve <approval_request_id>",
		Short: "Approve a pending RISKY action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decide(flags, "approve", args[0], reason, false, false)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "justification recorded on the approval_decision (required)")
	return cmd
}

func newDenyCommand(flags *rootFlags) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "deny <approval_request_id>",
		Short: "Deny a pending RISKY action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decide(flags, "deny", args[0], reason, false, false)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "justification recorded on the approval_decision (required)")
	return cmd
}

func newForceCommand(flags *rootFlags) *cobra.Command {
	var reason string
	var overrideBreaker, overrideCooldown bool
	cmd := &cobra.Command{
		Use:   "force <approval_request_id>",
		Short: "Approve a pending action, optionally overriding cooldown and/or circuit breaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return decide(flags, "force", args[0], reason, overrideBreaker, overrideCooldown)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "justification recorded on the approval_decision (minimum 10 characters, required)")
	cmd.Flags().BoolVar(&overrideBreaker, "override-breaker", false, "force execution even if the circuit breaker is open")
	cmd.Flags().BoolVar(&overrideCooldown, "override-cooldown", false, "force execution even if the action is on cooldown")
	return cmd
}

func decide(flags *rootFlags, verb, requestID, reason string, overrideBreaker, overrideCooldown bool) error {
	payload, err := json.Marshal(struct {
		AdminIdentity    string `json:"admin_identity"`
		Reason           string `json:"reason"`
		OverrideBreaker  bool   `json:"override_breaker,omitempty"`
		OverrideCooldown bool   `json:"override_cooldown,omitempty"`
	}{
		AdminIdentity:    flags.identity,
		Reason:           reason,
		OverrideBreaker:  overrideBreaker,
		OverrideCooldown: overrideCooldown,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/approvals/%s/%s", flags.addr, verb, requestID)
	body, err := doRequest(http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func doRequest(method, url string, payload []byte) ([]byte, error) {
	client := &http.Client{Timeout: 10 * time.Second}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("orionctl: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orionctl: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("orionctl: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("orionctl: %s", bytes.TrimSpace(body))
	}
	return body, nil
}

func printJSON(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
