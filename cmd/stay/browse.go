package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"staylink/internal/models"
)

var (
	searchQuery models.SearchQuery
	reviewPage  int
	reviewSize  int
)

var searchCmd = &cobra.Command{
	Use:   "search [keyword]",
	Short: "Search accommodations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := searchQuery
		if len(args) == 1 {
			q.Keyword = args[0]
		}
		page, err := app.client.SearchAccommodations(cmd.Context(), q)
		if err != nil {
			return err
		}
		return render(page, func(w io.Writer) {
			if len(page.Contents) == 0 {
				fmt.Fprintln(w, "No accommodations found.")
				return
			}
			fmt.Fprintln(w, "ID\tNAME\tREGION\tPRICE/NIGHT\tRATING\t♥")
			for _, a := range page.Contents {
				heart := ""
				if a.IsWishlisted {
					heart = "♥"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f (%d)\t%s\n",
					a.ID, truncate(a.Name, 30), a.Region, won(a.PricePerNight), a.Rating, a.ReviewCount, heart)
			}
			fmt.Fprintf(w, "\nPage %d/%d, %d total\n", page.Page, page.TotalPage, page.TotalElements)
		})
	},
}

var showCmd = &cobra.Command{
	Use:     "accommodation <accommodation-id>",
	Aliases: []string{"show"},
	Short:   "Show an accommodation with its latest reviews",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		acc, err := app.client.GetAccommodation(cmd.Context(), id)
		if err != nil {
			return err
		}
		reviews, err := app.client.ListReviews(cmd.Context(), id, reviewPage, reviewSize)
		if err != nil {
			return err
		}

		out := struct {
			Accommodation *models.Accommodation        `json:"accommodation" yaml:"accommodation"`
			Reviews       *models.Page[models.Review] `json:"reviews" yaml:"reviews"`
		}{acc, reviews}

		return render(out, func(w io.Writer) {
			fmt.Fprintf(w, "%s\n\n", acc.Name)
			fmt.Fprintf(w, "Category:\t%s\n", acc.Category)
			fmt.Fprintf(w, "Address:\t%s\n", acc.Address)
			fmt.Fprintf(w, "Price:\t%s / night\n", won(acc.PricePerNight))
			fmt.Fprintf(w, "Max guests:\t%d\n", acc.MaxGuests)
			fmt.Fprintf(w, "Rating:\t%.1f (%d reviews)\n", acc.Rating, acc.ReviewCount)
			fmt.Fprintf(w, "Host:\t%s (%s)\n", acc.HostName, acc.HostID)
			if len(acc.Amenities) > 0 {
				fmt.Fprintf(w, "Amenities:\t%s\n", strings.Join(acc.Amenities, ", "))
			}
			if acc.IsWishlisted {
				fmt.Fprintf(w, "Wishlisted:\tyes\n")
			}
			if acc.Description != "" {
				fmt.Fprintf(w, "\n%s\n", acc.Description)
			}
			if len(reviews.Contents) > 0 {
				fmt.Fprintln(w, "\nREVIEWS")
				for _, r := range reviews.Contents {
					fmt.Fprintf(w, "%s\t%s\t%s\n",
						strings.Repeat("★", r.Rating), r.AuthorName, truncate(r.Content, 60))
				}
			}
		})
	},
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List recently viewed accommodations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		views, err := app.client.RecentViews(cmd.Context())
		if err != nil {
			return err
		}
		return render(views, func(w io.Writer) {
			if len(views) == 0 {
				fmt.Fprintln(w, "Nothing viewed yet.")
				return
			}
			fmt.Fprintln(w, "ID\tNAME\tPRICE/NIGHT\tVIEWED")
			for _, v := range views {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
					v.AccommodationID, truncate(v.Name, 30), won(v.PricePerNight), v.ViewedAt.Local().Format("2006-01-02 15:04"))
			}
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the support chatbot",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		answer, err := app.client.AskChatbot(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return render(map[string]string{"answer": answer}, func(w io.Writer) {
			fmt.Fprintln(w, answer)
		})
	},
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchQuery.Region, "region", "", "Region filter")
	f.StringVar(&searchQuery.CheckIn, "check-in", "", "Check-in date (YYYY-MM-DD)")
	f.StringVar(&searchQuery.CheckOut, "check-out", "", "Check-out date (YYYY-MM-DD)")
	f.IntVar(&searchQuery.Guests, "guests", 0, "Number of guests")
	f.Int64Var(&searchQuery.MinPrice, "min-price", 0, "Minimum price per night")
	f.Int64Var(&searchQuery.MaxPrice, "max-price", 0, "Maximum price per night")
	f.IntVar(&searchQuery.Page, "page", 1, "Page number")
	f.IntVar(&searchQuery.Size, "size", 20, "Page size")

	showCmd.Flags().IntVar(&reviewPage, "review-page", 1, "Review page")
	showCmd.Flags().IntVar(&reviewSize, "review-size", 5, "Reviews per page")

	rootCmd.AddCommand(searchCmd, showCmd, recentCmd, askCmd)
}
