package main

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"staylink/internal/models"
)

var (
	bookRequest models.ReservationRequest
	bookPay     bool
	listPage    int
	listSize    int

	profileUpdate models.ProfileUpdateRequest
)

var reservationsCmd = &cobra.Command{
	Use:     "reservations",
	Aliases: []string{"trips"},
	Short:   "List your reservations",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		page, err := app.client.ListReservations(cmd.Context(), listPage, listSize)
		if err != nil {
			return err
		}
		return render(page, func(w io.Writer) {
			if len(page.Contents) == 0 {
				fmt.Fprintln(w, "No reservations.")
				return
			}
			fmt.Fprintln(w, "ID\tACCOMMODATION\tDATES\tGUESTS\tTOTAL\tSTATUS")
			for _, r := range page.Contents {
				fmt.Fprintf(w, "%d\t%s\t%s ~ %s\t%d\t%s\t%s\n",
					r.ID, truncate(r.AccommodationName, 24), r.CheckIn, r.CheckOut, r.Guests, won(r.TotalPrice), r.Status)
			}
		})
	},
}

var bookCmd = &cobra.Command{
	Use:   "book <accommodation-id>",
	Short: "Reserve an accommodation",
	Long: `Reserve an accommodation for the given dates.

With --pay the reservation is paid right away: the order is saved and then
confirmed with a generated payment key.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		req := bookRequest
		req.AccommodationID = id

		res, err := app.client.CreateReservation(cmd.Context(), req)
		if err != nil {
			return err
		}

		var payment *models.Payment
		if bookPay {
			orderID := uuid.NewString()
			err := app.client.SavePayment(cmd.Context(), models.PaymentSaveRequest{
				OrderID:       orderID,
				Amount:        res.TotalPrice,
				ReservationID: res.ID,
			})
			if err != nil {
				return err
			}
			payment, err = app.client.ConfirmPayment(cmd.Context(), models.PaymentConfirmRequest{
				PaymentKey:    uuid.NewString(),
				OrderID:       orderID,
				Amount:        res.TotalPrice,
				ReservationID: res.ID,
			})
			if err != nil {
				return err
			}
		}

		out := struct {
			Reservation *models.Reservation `json:"reservation" yaml:"reservation"`
			Payment     *models.Payment     `json:"payment,omitempty" yaml:"payment,omitempty"`
		}{res, payment}

		return render(out, func(w io.Writer) {
			fmt.Fprintf(w, "Reservation:\t%d\n", res.ID)
			fmt.Fprintf(w, "Stay:\t%s ~ %s, %d guests\n", res.CheckIn, res.CheckOut, res.Guests)
			fmt.Fprintf(w, "Total:\t%s\n", won(res.TotalPrice))
			if payment != nil {
				fmt.Fprintf(w, "Payment:\t%s (%s)\n", payment.Status, payment.OrderID)
			} else {
				fmt.Fprintf(w, "Status:\t%s\n", res.Status)
			}
		})
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <reservation-id>",
	Short: "Cancel a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		if err := app.client.CancelReservation(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("Cancelled reservation %d\n", id)
		return nil
	},
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or update your profile",
	Long: `Show your profile. Passing any of --nickname, --phone or --intro
updates those fields first.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			p   *models.Profile
			err error
		)
		if profileUpdate != (models.ProfileUpdateRequest{}) {
			p, err = app.client.UpdateProfile(cmd.Context(), profileUpdate)
		} else {
			p, err = app.client.GetProfile(cmd.Context())
		}
		if err != nil {
			return err
		}
		return render(p, func(w io.Writer) {
			fmt.Fprintf(w, "Nickname:\t%s\n", p.Nickname)
			fmt.Fprintf(w, "Email:\t%s\n", p.Email)
			if p.Phone != "" {
				fmt.Fprintf(w, "Phone:\t%s\n", p.Phone)
			}
			if p.Introduction != "" {
				fmt.Fprintf(w, "About:\t%s\n", p.Introduction)
			}
		})
	},
}

func init() {
	f := bookCmd.Flags()
	f.StringVar(&bookRequest.CheckIn, "check-in", "", "Check-in date (YYYY-MM-DD)")
	f.StringVar(&bookRequest.CheckOut, "check-out", "", "Check-out date (YYYY-MM-DD)")
	f.IntVar(&bookRequest.Guests, "guests", 1, "Number of guests")
	f.StringVar(&bookRequest.Phone, "phone", "", "Contact phone number")
	f.BoolVar(&bookPay, "pay", false, "Pay for the reservation immediately")
	_ = bookCmd.MarkFlagRequired("check-in")
	_ = bookCmd.MarkFlagRequired("check-out")
	_ = bookCmd.MarkFlagRequired("phone")

	reservationsCmd.Flags().IntVar(&listPage, "page", 1, "Page number")
	reservationsCmd.Flags().IntVar(&listSize, "size", 10, "Page size")

	profileCmd.Flags().StringVar(&profileUpdate.Nickname, "nickname", "", "New nickname")
	profileCmd.Flags().StringVar(&profileUpdate.Phone, "phone", "", "New phone number")
	profileCmd.Flags().StringVar(&profileUpdate.Introduction, "intro", "", "New introduction")

	rootCmd.AddCommand(reservationsCmd, bookCmd, cancelCmd, profileCmd)
}
