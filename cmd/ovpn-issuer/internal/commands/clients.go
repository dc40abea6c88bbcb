package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type IssueCmd struct {
	Name  string `arg:"" help:"Client identity (certificate common name)."`
	Force bool   `help:"Revoke and re-issue if the client already has a profile."`
}

func (c *IssueCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open(true)
	if err != nil {
		return err
	}
	defer a.Close()

	issue := a.registry.Issue
	if c.Force {
		issue = a.registry.Reissue
	}
	// A signal must not interrupt easy-rsa halfway through signing.
	p, err := issue(context.WithoutCancel(ctx), c.Name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Issued %s: %s\n", p.Identity, p.Path)
	return nil
}

type ListCmd struct{}

func (c *ListCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	names, err := a.registry.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}

type FetchCmd struct {
	Name string `arg:"" help:"Client identity."`
	Out  string `help:"Write the profile to this file instead of stdout." short:"o" type:"path"`
}

func (c *FetchCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.registry.Fetch(c.Name)
	if err != nil {
		return err
	}
	if c.Out == "" {
		_, err = a.out.Write(p.Content)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Out), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(c.Out, p.Content, 0o600); err != nil {
		return fmt.Errorf("failed to write profile: %w", err)
	}
	fmt.Fprintf(a.out, "Wrote %s\n", c.Out)
	return nil
}

type InspectCmd struct {
	Name string `arg:"" help:"Client identity."`
	JSON bool   `help:"Print the result as JSON."`
}

func (c *InspectCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	inspection, err := a.registry.Inspect(c.Name)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(inspection)
	}
	fmt.Fprintf(a.out, "Client:  %s\n", inspection.Identity)
	fmt.Fprintf(a.out, "Remote:  %s\n", net.JoinHostPort(inspection.Host, strconv.Itoa(inspection.Port)))
	fmt.Fprintf(a.out, "Proto:   %s\n", inspection.Proto)
	fmt.Fprintf(a.out, "Embeds:  %s\n", strings.Join(inspection.Blocks, ", "))
	return nil
}

type RevokeCmd struct {
	Name string `arg:"" help:"Client identity."`
}

func (c *RevokeCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	revoked, err := a.registry.Revoke(context.WithoutCancel(ctx), c.Name)
	if err != nil {
		return err
	}
	if revoked {
		fmt.Fprintf(a.out, "Revoked %s\n", c.Name)
	} else {
		fmt.Fprintf(a.out, "%s was not issued\n", c.Name)
	}
	return nil
}
