package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ignite/newsletter/internal/digest"
	"github.com/ignite/newsletter/internal/domain"
	"github.com/ignite/newsletter/internal/service/campaign"
)

const timeLayout = "2006-01-02 15:04"

type campaignFinder interface {
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
}

func campaignFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "campaign-id", Usage: "ID of the campaign"},
		&cli.StringFlag{Name: "campaign-name", Usage: "exact name of the campaign"},
	}
}

// resolveCampaign finds the campaign named by id or, failing that, by
// its exact name.
func resolveCampaign(ctx context.Context, f campaignFinder, id, name string) (*domain.Campaign, error) {
	switch {
	case id != "":
		c, err := f.Get(ctx, id)
		if errors.Is(err, campaign.ErrNotFound) {
			return nil, fmt.Errorf("campaign with ID %s does not exist", id)
		}
		return c, err
	case name != "":
		items, _, err := f.List(ctx, campaign.ListFilter{Search: name, Limit: 100})
		if err != nil {
			return nil, err
		}
		var match *domain.Campaign
		for i := range items {
			if items[i].Name != name {
				continue
			}
			if match != nil {
				return nil, fmt.Errorf("several campaigns are named %q, use --campaign-id", name)
			}
			match = &items[i]
		}
		if match == nil {
			return nil, fmt.Errorf("campaign with name %q does not exist", name)
		}
		return match, nil
	default:
		return nil, errors.New("please specify either --campaign-id or --campaign-name")
	}
}

func (f *Flags) campaign(ctx context.Context, c *cli.Command) (*domain.Campaign, error) {
	return resolveCampaign(ctx, f.App.Campaigns, c.String("campaign-id"), c.String("campaign-name"))
}

type listCmd struct{ flags *Flags }

func (cmd *listCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List campaigns, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "only campaigns in this status"},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *listCmd) run(ctx context.Context, c *cli.Command) error {
	items, total, err := cmd.flags.App.Campaigns.List(ctx, campaign.ListFilter{Status: c.String("status"), Limit: 200})
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	out := c.Root().Writer
	if total == 0 {
		fmt.Fprintln(out, "No campaigns found")
		return nil
	}
	printCampaigns(out, items)
	if total > len(items) {
		fmt.Fprintf(out, "\n%d of %d campaigns shown\n", len(items), total)
	}
	return nil
}

func printCampaigns(out io.Writer, items []domain.Campaign) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tTYPE\tSUBJECT\tCREATED\tSENT")
	for _, cp := range items {
		sent := "-"
		if cp.SentAt != nil {
			sent = cp.SentAt.Format(timeLayout)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			cp.ID, cp.Name, cp.Status, cp.Type, cp.Subject, cp.CreatedAt.Format(timeLayout), sent)
	}
	w.Flush()
}

type sendCmd struct{ flags *Flags }

func (cmd *sendCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "send",
		Usage: "Send a campaign to its audience, or a test copy to one address",
		Flags: append(campaignFlags(),
			&cli.StringFlag{Name: "test-email", Usage: "send a test email to this address instead of all subscribers"},
			&cli.BoolFlag{Name: "list-campaigns", Usage: "list available campaigns and exit"},
		),
		Action: cmd.run,
	})
	return app
}

func (cmd *sendCmd) run(ctx context.Context, c *cli.Command) error {
	if c.Bool("list-campaigns") {
		return (&listCmd{flags: cmd.flags}).run(ctx, c)
	}
	cp, err := cmd.flags.campaign(ctx, c)
	if err != nil {
		return err
	}
	out := c.Root().Writer
	svc := cmd.flags.App.Campaigns

	if addr := c.String("test-email"); addr != "" {
		if _, err := svc.Execute(ctx, campaign.SendTest{CampaignID: cp.ID, Address: addr}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Test email sent to %s\n", addr)
		return nil
	}

	fmt.Fprintf(out, "Sending campaign: %s\n", cp.Name)
	fmt.Fprintf(out, "Subject: %s\n", cp.Subject)
	res, err := svc.Execute(ctx, campaign.StartSend{CampaignID: cp.ID})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Sent: %d/%d emails\n", res.Send.Sent, res.Send.Recipients)
	for _, f := range res.Send.Failures {
		fmt.Fprintf(out, "  failed %s: %s\n", f.Email, f.Reason)
	}
	return nil
}

type statsCmd struct{ flags *Flags }

func (cmd *statsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "stats",
		Usage:  "Show a campaign's counters and rates",
		Flags:  campaignFlags(),
		Action: cmd.run,
	})
	return app
}

func (cmd *statsCmd) run(ctx context.Context, c *cli.Command) error {
	cp, err := cmd.flags.campaign(ctx, c)
	if err != nil {
		return err
	}
	st, err := cmd.flags.App.Campaigns.Stats(ctx, cp.ID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Campaign\t%s (%s)\n", cp.Name, st.Status)
	fmt.Fprintf(w, "Recipients\t%d\n", st.Counters.Recipients)
	fmt.Fprintf(w, "Sent\t%d\n", st.Counters.Sent)
	fmt.Fprintf(w, "Delivered\t%d\t%.1f%%\n", st.Counters.Delivered, st.DeliveryRate)
	fmt.Fprintf(w, "Opened\t%d\t%.1f%%\n", st.Counters.Opened, st.OpenRate)
	fmt.Fprintf(w, "Clicked\t%d\t%.1f%%\n", st.Counters.Clicked, st.ClickRate)
	fmt.Fprintf(w, "Bounced\t%d\t%.1f%%\n", st.Counters.Bounced, st.BounceRate)
	fmt.Fprintf(w, "Unsubscribed\t%d\t%.1f%%\n", st.Counters.Unsubscribed, st.UnsubscribeRate)
	fmt.Fprintf(w, "Spam complaints\t%d\n", st.Counters.SpamComplaints)
	return w.Flush()
}

type cancelCmd struct{ flags *Flags }

func (cmd *cancelCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "cancel",
		Usage:  "Cancel a draft or scheduled campaign",
		Flags:  campaignFlags(),
		Action: cmd.run,
	})
	return app
}

func (cmd *cancelCmd) run(ctx context.Context, c *cli.Command) error {
	cp, err := cmd.flags.campaign(ctx, c)
	if err != nil {
		return err
	}
	if _, err := cmd.flags.App.Campaigns.Execute(ctx, campaign.Cancel{CampaignID: cp.ID}); err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "Campaign %q cancelled\n", cp.Name)
	return nil
}

type reconcileCmd struct{ flags *Flags }

func (cmd *reconcileCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "reconcile",
		Usage:       "Compare a campaign's counters with the activity ledger",
		Description: "Exits with status 2 when any counter disagrees with the ledger.",
		Flags:       campaignFlags(),
		Action:      cmd.run,
	})
	return app
}

func (cmd *reconcileCmd) run(ctx context.Context, c *cli.Command) error {
	cp, err := cmd.flags.campaign(ctx, c)
	if err != nil {
		return err
	}
	rec, err := cmd.flags.App.Ledger.Reconcile(ctx, cp)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNTER\tSTORED\tLEDGER\tMATCH")
	for _, ch := range rec.Checks {
		fmt.Fprintf(w, "%s\t%d\t%d\t%v\n", ch.Counter, ch.Stored, ch.Ledger, ch.Match)
	}
	w.Flush()
	if !rec.Consistent {
		return cli.Exit("counters disagree with the ledger", 2)
	}
	return nil
}

type archiveCmd struct{ flags *Flags }

func (cmd *archiveCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "archive",
		Usage:  "Export a sent campaign's ledger and store its stats snapshot",
		Flags:  campaignFlags(),
		Action: cmd.run,
	})
	return app
}

func (cmd *archiveCmd) run(ctx context.Context, c *cli.Command) error {
	cp, err := cmd.flags.campaign(ctx, c)
	if err != nil {
		return err
	}
	if cp.Status != domain.CampaignSent {
		return fmt.Errorf("campaign %q is not sent (current: %s)", cp.Name, cp.Status)
	}
	arch := cmd.flags.App.Archiver
	if err := arch.ArchiveCampaign(ctx, cp); err != nil {
		return err
	}
	snap, err := arch.Snapshot(ctx, cp.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "Archived %q: %d ledger entries at %s\n",
		cp.Name, snap.Entries, snap.ArchivedAt.Format(time.RFC3339))
	return nil
}

type digestCmd struct{ flags *Flags }

func (cmd *digestCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "digest",
		Usage: "Create a blog digest campaign draft from the feed",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "since", Usage: "only posts newer than this", Value: 7 * 24 * time.Hour},
			&cli.StringFlag{Name: "subject", Usage: "subject line (default: newest post title)"},
			&cli.StringSliceFlag{Name: "interest", Usage: "target subscribers with these interests"},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *digestCmd) run(ctx context.Context, c *cli.Command) error {
	b := cmd.flags.App.Digest
	if b == nil {
		return errors.New("digest.feed_url is not configured")
	}
	since := time.Now().Add(-c.Duration("since"))
	cp, err := b.Build(ctx, digest.Request{
		Subject:      c.String("subject"),
		Since:        &since,
		InterestTags: c.StringSlice("interest"),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.Root().Writer, "Created draft %s (%s)\n", cp.ID, cp.Name)
	return nil
}
