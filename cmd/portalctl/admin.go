package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"realtyportal/internal/domain"
	"realtyportal/internal/services"
)

func createAdminCommand() *cobra.Command {
	var (
		username string
		email    string
		password string
		fullName string
		staff    bool
	)
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create a back-office account",
		RunE: func(cmd *cobra.Command, args []string) error {
			var existing domain.User
			if err := current.db.Where("username = ?", username).First(&existing).Error; err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "User %q already exists\n", username)
				return nil
			}

			in := services.CreateUserInput{
				Username: username,
				Email:    email,
				Password: password,
				IsAdmin:  !staff,
				IsStaff:  true,
			}
			if fullName != "" {
				in.FullName = &fullName
			}
			user, err := services.NewAuthService(current.db, &current.cfg.Auth).CreateUser(cmd.Context(), in)
			if err != nil {
				return err
			}
			role := "admin"
			if staff {
				role = "staff"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s user %s (id %d)\n", role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "login name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "initial password, at least 8 characters")
	cmd.Flags().StringVar(&fullName, "full-name", "System Administrator", "display name")
	cmd.Flags().BoolVar(&staff, "staff", false, "create a staff account without admin rights")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
