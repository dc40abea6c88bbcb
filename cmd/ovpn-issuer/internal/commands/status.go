package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"ovpn-issuer/internal/audit"
	"ovpn-issuer/internal/status"
)

type StatusCmd struct {
	Network []string `help:"Only show clients whose address is in these networks (CIDR or address)." sep:","`
}

func (c *StatusCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := status.ReadFile(a.cfg.StatusLog)
	if err != nil {
		return fmt.Errorf("failed to read status log: %w", err)
	}
	records, err = status.FilterNetworks(records, c.Network)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out, "No connected clients")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT\tADDRESS\tRECEIVED\tSENT\tCONNECTED SINCE")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.CommonName, r.Address, status.FormatMiB(r.BytesReceived), status.FormatMiB(r.BytesSent), r.ConnectedSince)
	}
	return w.Flush()
}

type SummaryCmd struct{}

func (c *SummaryCmd) Run(globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	issued, err := a.registry.Count()
	if err != nil {
		return err
	}
	records, err := status.ReadFile(a.cfg.StatusLog)
	if err != nil {
		return fmt.Errorf("failed to read status log: %w", err)
	}
	summary := status.Summarize(records)
	fmt.Fprintf(a.out, "Issued clients:    %d\n", issued)
	fmt.Fprintf(a.out, "Connected clients: %d\n", summary.Clients)
	fmt.Fprintf(a.out, "Received:          %s\n", humanize.IBytes(uint64(summary.BytesReceived)))
	fmt.Fprintf(a.out, "Sent:              %s\n", humanize.IBytes(uint64(summary.BytesSent)))
	return nil
}

type EventsCmd struct {
	Limit  int    `help:"Maximum number of events to show." default:"20"`
	Client string `help:"Only show events for this client."`
}

func (c *EventsCmd) Run(ctx context.Context, globals *Globals) error {
	a, err := globals.open(false)
	if err != nil {
		return err
	}
	defer a.Close()

	var events []audit.Event
	if c.Client != "" {
		events, err = a.events.ListForIdentity(ctx, c.Client, c.Limit)
	} else {
		events, err = a.events.List(ctx, c.Limit)
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tCLIENT\tACTION\tOUTCOME\tDETAIL")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", humanize.Time(e.CreatedAt), e.Identity, e.Action, e.Outcome, e.Detail)
	}
	return w.Flush()
}
