package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var wishlistMemo string

var wishlistCmd = &cobra.Command{
	Use:     "wishlist",
	Aliases: []string{"wl"},
	Short:   "Manage wishlists",
}

var wishlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your wishlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lists, err := app.client.ListWishlists(cmd.Context())
		if err != nil {
			return err
		}
		return render(lists, func(w io.Writer) {
			if len(lists) == 0 {
				fmt.Fprintln(w, "No wishlists yet.")
				return
			}
			fmt.Fprintln(w, "ID\tNAME\tITEMS")
			for _, l := range lists {
				fmt.Fprintf(w, "%d\t%s\t%d\n", l.ID, l.Name, l.ItemCount)
			}
		})
	},
}

var wishlistCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a wishlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.client.CreateWishlist(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return render(list, func(w io.Writer) {
			fmt.Fprintf(w, "Created wishlist %d (%s)\n", list.ID, list.Name)
		})
	},
}

var wishlistDeleteCmd = &cobra.Command{
	Use:   "delete <wishlist-id>",
	Short: "Delete a wishlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := app.client.DeleteWishlist(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Deleted wishlist %d\n", id)
		return nil
	},
}

var wishlistItemsCmd = &cobra.Command{
	Use:   "items <wishlist-id>",
	Short: "List the accommodations in a wishlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		page, err := app.client.WishlistItems(cmd.Context(), id, 1, 50)
		if err != nil {
			return err
		}
		return render(page, func(w io.Writer) {
			fmt.Fprintln(w, "ID\tNAME\tPRICE/NIGHT")
			for _, a := range page.Contents {
				fmt.Fprintf(w, "%d\t%s\t%s\n", a.ID, truncate(a.Name, 30), won(a.PricePerNight))
			}
		})
	},
}

var wishlistAddCmd = &cobra.Command{
	Use:   "add <wishlist-id> <accommodation-id>",
	Short: "Save an accommodation to a wishlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, accID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		if err := app.client.AddToWishlist(cmd.Context(), listID, accID, wishlistMemo); err != nil {
			return err
		}
		fmt.Printf("Saved %d to wishlist %d\n", accID, listID)
		return nil
	},
}

var wishlistRemoveCmd = &cobra.Command{
	Use:   "remove <wishlist-id> <accommodation-id>",
	Short: "Remove an accommodation from a wishlist",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		listID, accID, err := parseIDPair(args)
		if err != nil {
			return err
		}
		if err := app.client.RemoveFromWishlist(cmd.Context(), listID, accID); err != nil {
			return err
		}
		fmt.Printf("Removed %d from wishlist %d\n", accID, listID)
		return nil
	},
}

func parseIDPair(args []string) (int64, int64, error) {
	a, err := parseID(args[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := parseID(args[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func init() {
	wishlistAddCmd.Flags().StringVar(&wishlistMemo, "memo", "", "Note to keep with the item")

	wishlistCmd.AddCommand(wishlistListCmd, wishlistCreateCmd, wishlistDeleteCmd,
		wishlistItemsCmd, wishlistAddCmd, wishlistRemoveCmd)
	rootCmd.AddCommand(wishlistCmd)
}
