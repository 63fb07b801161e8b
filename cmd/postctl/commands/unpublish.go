package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var unpublishCmd = &cobra.Command{
	Use:   "unpublish <post-id>",
	Short: "Delete a published post from LinkedIn",
	Long: `Delete a published post from LinkedIn using the owner's stored token.

The post stays in the engagement database so its metrics keep counting
towards the learned insights.`,
	Args: cobra.ExactArgs(1),
	RunE: runUnpublish,
}

func runUnpublish(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	post, err := a.Store.GetPost(ctx, args[0])
	if err != nil {
		return err
	}
	if !post.IsPublished() || post.LinkedInPostID == "" {
		return fmt.Errorf("post %s was never published", post.ID)
	}

	user, err := a.Users.Get(post.ChatID)
	if err != nil {
		return err
	}
	if !user.LinkedInConnected(time.Now()) {
		return fmt.Errorf("chat %d has no valid LinkedIn token", post.ChatID)
	}

	if err := a.LinkedIn.DeletePost(ctx, user.LinkedInToken, post.LinkedInPostID); err != nil {
		return err
	}

	if useJSON() {
		return outputJSON(map[string]string{"post_id": post.ID, "linkedin_post_id": post.LinkedInPostID, "status": "deleted"})
	}
	fmt.Printf("Deleted %s from LinkedIn\n", post.LinkedInPostID)
	return nil
}
