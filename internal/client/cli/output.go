package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/songletters/internal/client/client"
	"github.com/dmitrijs2005/songletters/internal/client/models"
	"github.com/dmitrijs2005/songletters/internal/common"
	"github.com/dmitrijs2005/songletters/internal/identity"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// describe turns an error into something a person can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrUnavailable):
		return "cannot reach the server, check --server or try again later"
	case errors.Is(err, common.ErrTokenExpired):
		return "your session has expired, run `songletters merge` with a fresh token"
	case errors.Is(err, common.ErrorUnauthorized):
		return "not authorized for this request"
	case errors.Is(err, common.ErrorNotFound):
		return "letter not found"
	case errors.Is(err, common.ErrMergeIncomplete):
		return "signed in, but your letters could not be moved yet; they stay on this identity and the next merge retries"
	case errors.Is(err, common.ErrQueryUnsupported):
		return "browsing is unavailable while the server runs on fallback storage"
	case errors.Is(err, common.ErrBackendUnavailable):
		return "the server's storage is unavailable, try again later"
	}
	return err.Error()
}

func printLetter(w io.Writer, res *models.LetterResponse) {
	l := res.Letter
	fmt.Fprintf(w, "Link:    %s\n", l.LinkID)
	fmt.Fprintf(w, "To:      %s\n", l.RecipientName)
	fmt.Fprintf(w, "Song:    %s by %s\n", l.Song.Title, l.Song.Artist)
	if l.Song.ExternalURL != "" {
		fmt.Fprintf(w, "Listen:  %s\n", l.Song.ExternalURL)
	}
	fmt.Fprintf(w, "Public:  %t\n", l.IsPublic)
	fmt.Fprintf(w, "Views:   %d\n", l.ViewCount)
	if !l.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Written: %s\n", l.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%s\n", l.Message)
	printDegraded(w, res.Degraded, res.Pending)
}

func printList(w io.Writer, res *models.ListResponse) {
	if len(res.Letters) == 0 {
		fmt.Fprintln(w, "No letters.")
		printDegraded(w, res.Degraded, false)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINK\tTO\tSONG\tVIEWS\tWRITTEN")
	for _, l := range res.Letters {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			l.LinkID, truncate(l.RecipientName, 24), truncate(l.Song.Title+" by "+l.Song.Artist, 40),
			l.ViewCount, l.CreatedAt.Local().Format("2006-01-02"))
	}
	_ = tw.Flush()
	printDegraded(w, res.Degraded, false)
}

func printDegraded(w io.Writer, degraded, pending bool) {
	switch {
	case pending:
		fmt.Fprintln(w, "\n(saved on fallback storage; it will sync once the database is back)")
	case degraded:
		fmt.Fprintln(w, "\n(served from fallback storage; results may be incomplete)")
	}
}

func printIdentity(w io.Writer, res *models.IdentityResponse) {
	if res.Identity != nil {
		fmt.Fprintf(w, "Anonymous ID: %s\n", res.Identity.AnonymousID)
		fmt.Fprintf(w, "First seen:   %s\n", res.Identity.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if res.AccountID != "" {
		fmt.Fprintf(w, "Account:      %s\n", res.AccountID)
	}
	fmt.Fprintf(w, "Persistent:   %t\n", res.Capabilities.Persistent)

	switch res.Classification {
	case identity.DeviceChange:
		fmt.Fprintln(w, "\nThis looks like a different device. Run `songletters merge` to keep your letters together.")
	case identity.LongAbsence:
		fmt.Fprintln(w, "\nWelcome back. Run `songletters merge` so your letters are not lost.")
	}
}

func printMerge(w io.Writer, rep *models.MergeReport) {
	if rep.AnonymousID == "" {
		fmt.Fprintf(w, "Signed in as %s. No anonymous letters to move.\n", rep.AccountID)
		return
	}
	fmt.Fprintf(w, "Signed in as %s. Moved %d letter(s) from %s.\n", rep.AccountID, rep.Reparented, rep.AnonymousID)
	printDegraded(w, rep.Degraded, false)
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
