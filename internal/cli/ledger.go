package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/collectnet/collect/internal/app/collection"
	"github.com/collectnet/collect/internal/daemon"
	"github.com/collectnet/collect/internal/domain"
)

func init() {
	rootCmd.AddCommand(companyCmd, userCmd, truckCmd, accountCmd, requestCmd, settleCmd, collectionsCmd)

	companyCmd.AddCommand(companyRegisterCmd)
	userCmd.AddCommand(userRegisterCmd)
	truckCmd.AddCommand(truckRegisterCmd, truckAssignCmd)
	accountCmd.AddCommand(accountDepositCmd, accountWithdrawCmd)
	requestCmd.AddCommand(requestSubmitCmd, requestCancelCmd, requestListCmd)
	collectionsCmd.AddCommand(collectionsListCmd)

	for _, c := range []*cobra.Command{companyRegisterCmd, userRegisterCmd} {
		c.Flags().String("id", "", "Record id (minted when empty)")
		c.Flags().String("name", "", "Display name")
		c.Flags().String("contact", "", "Contact details")
		c.Flags().String("home-address", "", "Postal address")
		c.Flags().String("district", "", "District")
	}
	companyRegisterCmd.Flags().Uint64("charges", 0, "Flat fee per collection")

	truckRegisterCmd.Flags().String("id", "", "Truck id (minted when empty)")
	truckRegisterCmd.Flags().String("registration", "", "Plate number")
	truckRegisterCmd.Flags().String("driver", "", "Driver name")
	truckRegisterCmd.Flags().String("district", "", "Service district")
	truckRegisterCmd.Flags().Uint64("capacity", 0, "Total capacity")

	requestSubmitCmd.Flags().String("pickup", "", "Pickup address")

	settleCmd.Flags().String("user", "", "User id")
	settleCmd.Flags().String("truck", "", "Truck id")
	settleCmd.Flags().String("address", "", "User owner address (defaults to the request's requester)")
	settleCmd.Flags().String("request", "", "Pending request to consume")
	settleCmd.Flags().String("date", "", "Collection date, YYYY-MM-DD (default today)")
	settleCmd.Flags().String("district", "", "District (default the truck's)")
	settleCmd.Flags().Uint64("weight", 0, "Collected weight")
	settleCmd.MarkFlagRequired("user")
	settleCmd.MarkFlagRequired("truck")
}

func profileFlags(cmd *cobra.Command) domain.Profile {
	name, _ := cmd.Flags().GetString("name")
	contact, _ := cmd.Flags().GetString("contact")
	home, _ := cmd.Flags().GetString("home-address")
	district, _ := cmd.Flags().GetString("district")
	return domain.Profile{Name: name, Contact: contact, HomeAddress: home, District: district}
}

// ─── company / user ─────────────────────────────────────────────────────────

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Manage collection companies",
}

var companyRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a company owned by --as",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		charges, _ := cmd.Flags().GetUint64("charges")
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			c, err := d.Service.RegisterCompany(ctx, caller(), collection.CompanyParams{
				ID: id, Profile: profileFlags(cmd), Charges: charges,
			})
			if err != nil {
				return err
			}
			return printJSON(c)
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a user owned by --as",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			u, err := d.Service.RegisterUser(ctx, caller(), collection.UserParams{ID: id, Profile: profileFlags(cmd)})
			if err != nil {
				return err
			}
			return printJSON(u)
		})
	},
}

// ─── truck ──────────────────────────────────────────────────────────────────

var truckCmd = &cobra.Command{
	Use:   "truck",
	Short: "Manage a company's fleet",
}

var truckRegisterCmd = &cobra.Command{
	Use:   "register COMPANY_ID",
	Short: "Add a truck to a company's fleet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p collection.TruckParams
		p.ID, _ = cmd.Flags().GetString("id")
		p.Registration, _ = cmd.Flags().GetString("registration")
		p.Driver, _ = cmd.Flags().GetString("driver")
		p.District, _ = cmd.Flags().GetString("district")
		p.Capacity, _ = cmd.Flags().GetUint64("capacity")
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			t, err := d.Service.RegisterTruck(ctx, caller(), args[0], p)
			if err != nil {
				return err
			}
			return printJSON(t)
		})
	},
}

var truckAssignCmd = &cobra.Command{
	Use:   "assign TRUCK_ID USER_ADDRESS",
	Short: "Put a user on a truck's route",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			t, err := d.Service.AssignUser(ctx, caller(), args[0], domain.Address(args[1]))
			if err != nil {
				return err
			}
			return printJSON(t)
		})
	},
}

// ─── account ────────────────────────────────────────────────────────────────

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Deposit to or withdraw from a user or company balance",
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit user|company ID AMOUNT",
	Short: "Credit an account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return err
		}
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			bal, err := d.Service.Deposit(ctx, collection.AccountKind(args[0]), args[1], amount)
			if err != nil {
				return err
			}
			return printJSON(map[string]uint64{"balance": bal})
		})
	},
}

var accountWithdrawCmd = &cobra.Command{
	Use:   "withdraw user|company ID AMOUNT",
	Short: "Debit an account owned by --as",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return err
		}
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			released, err := d.Service.Withdraw(ctx, caller(), collection.AccountKind(args[0]), args[1], amount)
			if err != nil {
				return err
			}
			return printJSON(map[string]uint64{"released": released})
		})
	},
}

// ─── request ────────────────────────────────────────────────────────────────

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Manage pickup requests",
}

var requestSubmitCmd = &cobra.Command{
	Use:   "submit COMPANY_ID USER_ID",
	Short: "File a pickup request as the user's owner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pickup, _ := cmd.Flags().GetString("pickup")
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			r, err := d.Service.SubmitRequest(ctx, caller(), args[0], args[1], pickup)
			if err != nil {
				return err
			}
			return printJSON(r)
		})
	},
}

var requestCancelCmd = &cobra.Command{
	Use:   "cancel COMPANY_ID REQUEST_ID",
	Short: "Cancel a pending request as the company owner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			return d.Service.CancelRequest(ctx, caller(), args[0], args[1])
		})
	},
}

var requestListCmd = &cobra.Command{
	Use:   "list COMPANY_ID",
	Short: "List pending requests, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			reqs, err := d.Service.ListRequests(ctx, caller(), args[0])
			if err != nil {
				return err
			}
			return printJSON(reqs)
		})
	},
}

// ─── settle / collections ───────────────────────────────────────────────────

var settleCmd = &cobra.Command{
	Use:   "settle COMPANY_ID",
	Short: "Record a completed collection and charge the user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var p collection.SettleParams
		p.UserID, _ = cmd.Flags().GetString("user")
		p.TruckID, _ = cmd.Flags().GetString("truck")
		addr, _ := cmd.Flags().GetString("address")
		p.UserAddress = domain.Address(addr)
		p.RequestID, _ = cmd.Flags().GetString("request")
		p.Date, _ = cmd.Flags().GetString("date")
		p.District, _ = cmd.Flags().GetString("district")
		p.Weight, _ = cmd.Flags().GetUint64("weight")
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			col, err := d.Service.Settle(ctx, caller(), args[0], p)
			if err != nil {
				return err
			}
			return printJSON(col)
		})
	},
}

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "Inspect a company's collection ledger",
}

var collectionsListCmd = &cobra.Command{
	Use:   "list COMPANY_ID",
	Short: "List collections in the order they were recorded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Daemon) error {
			cols, err := d.Service.ListCollections(ctx, caller(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cols)
		})
	},
}
