package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/songletters/internal/client/models"
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	var in models.NewLetter

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a letter",
		Long: `create writes a letter and prints its link. Missing fields are
prompted for; the message is read until an empty line.`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		prompts := []struct {
			dst    *string
			prompt string
		}{
			{&in.RecipientName, "Who is the letter for?"},
			{&in.Song.Title, "Song title"},
			{&in.Song.Artist, "Artist"},
		}
		for _, p := range prompts {
			if strings.TrimSpace(*p.dst) != "" {
				continue
			}
			v, err := GetSimpleText(a.input(cmd), p.prompt, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			*p.dst = v
		}
		if strings.TrimSpace(in.Message) == "" {
			msg, err := GetMultiline(a.input(cmd), "Message", cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			in.Message = msg
		}

		res, err := a.service.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		if a.opts.asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Letter created: %s\n", res.Letter.LinkID)
		printDegraded(cmd.OutOrStdout(), res.Degraded, res.Pending)
		return nil
	})

	f := cmd.Flags()
	f.StringVar(&in.RecipientName, "to", "", "recipient name")
	f.StringVarP(&in.Message, "message", "m", "", "letter text")
	f.StringVar(&in.Song.Title, "title", "", "song title")
	f.StringVar(&in.Song.Artist, "artist", "", "song artist")
	f.StringVar(&in.Song.CoverURL, "cover", "", "cover art URL")
	f.StringVar(&in.Song.ExternalURL, "url", "", "link to the song")
	f.BoolVar(&in.IsPublic, "public", false, "list the letter on explore")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [link]",
		Short: "Read a letter by its link",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		res, err := a.service.Show(cmd.Context(), linkFromArg(args[0]))
		if err != nil {
			return err
		}
		if a.opts.asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printLetter(cmd.OutOrStdout(), res)
		return nil
	})
	return cmd
}

// linkFromArg accepts a bare link id or a URL ending in one.
func linkFromArg(arg string) string {
	arg = strings.TrimRight(strings.TrimSpace(arg), "/")
	if i := strings.LastIndex(arg, "/"); i >= 0 {
		arg = arg[i+1:]
	}
	if i := strings.IndexAny(arg, "?#"); i >= 0 {
		arg = arg[:i]
	}
	return arg
}

func newMineCmd(a *app) *cobra.Command {
	var page models.Page

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "List letters written from this machine or your account",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		res, err := a.service.Mine(cmd.Context(), page)
		if err != nil {
			return err
		}
		if a.opts.asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printList(cmd.OutOrStdout(), res)
		return nil
	})
	addPageFlags(cmd, &page)
	return cmd
}

func newExploreCmd(a *app) *cobra.Command {
	var req models.ExploreRequest

	cmd := &cobra.Command{
		Use:   "explore [search terms]",
		Short: "Browse public letters",
		Long: `explore lists public letters, newest first. With search terms it
matches recipient, message, song title and artist instead.`,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		req.SearchQuery = strings.TrimSpace(strings.Join(args, " "))
		res, err := a.service.Explore(cmd.Context(), req)
		if err != nil {
			return err
		}
		if a.opts.asJSON {
			return writeJSON(cmd.OutOrStdout(), res)
		}
		printList(cmd.OutOrStdout(), res)
		return nil
	})
	cmd.Flags().StringVar(&req.SortBy, "sort", "", "newest, oldest or popular")
	cmd.Flags().StringVar(&req.Artist, "artist", "", "only letters with songs by this artist")
	addPageFlags(cmd, &req.Page)
	return cmd
}

func addPageFlags(cmd *cobra.Command, page *models.Page) {
	cmd.Flags().IntVar(&page.Limit, "limit", 0, "page size")
	cmd.Flags().IntVar(&page.Offset, "offset", 0, "letters to skip")
}
