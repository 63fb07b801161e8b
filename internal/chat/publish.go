package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/azure/linkedin-content-bot/internal/linkedin"
	"github.com/azure/linkedin-content-bot/internal/metrics"
	"github.com/azure/linkedin-content-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// Approve publishes the pending draft of chatID. Concurrent approvals publish it once.
func (b *Bot) Approve(ctx context.Context, chatID int64) {
	log := logrus.WithField("chat_id", chatID)

	_, pending, err := b.deps.Store.PeekPending(ctx, chatID)
	if err != nil {
		log.Errorf("Failed to read pending draft: %v", err)
		b.reply(ctx, chatID, "Could not read your draft, please try again.")
		return
	}
	if !pending {
		b.reply(ctx, chatID, "No pending draft to approve. Use /generate to create one.")
		return
	}

	user, err := b.deps.Users.Get(chatID)
	if err != nil || !user.LinkedInConnected(b.now()) {
		b.reply(ctx, chatID, "LinkedIn is not connected, so the draft is still waiting.\nUse /auth to connect, then reply post again.")
		return
	}

	postID, claimed, err := b.deps.Store.ClaimPending(ctx, chatID)
	if err != nil {
		log.Errorf("Failed to claim pending draft: %v", err)
		b.reply(ctx, chatID, "Could not read your draft, please try again.")
		return
	}
	if !claimed {
		// another approval got there first
		return
	}

	post, err := b.deps.Store.GetPost(ctx, postID)
	if err != nil {
		log.Errorf("Pending draft %s is missing: %v", postID, err)
		b.reply(ctx, chatID, "Your draft could not be found. Use /generate to create a new one.")
		return
	}

	author := user.LinkedInURN
	if author == "" {
		author, err = b.deps.Publisher.UserURN(ctx, user.LinkedInToken)
		if err == nil {
			if _, saveErr := b.deps.Users.SetLinkedIn(chatID, user.LinkedInToken, user.LinkedInExpiry, author); saveErr != nil {
				log.Warnf("Failed to save LinkedIn member id: %v", saveErr)
			}
		}
	}

	var res *linkedin.PostResult
	if err == nil {
		res, err = b.deps.Publisher.CreatePost(ctx, user.LinkedInToken, author, post.Content)
	}
	metrics.ObservePublish(err)
	if err != nil {
		log.Errorf("Publishing failed: %v", err)
		note := b.restorePending(ctx, chatID, postID)
		if errors.Is(err, linkedin.ErrUnauthorized) {
			b.reply(ctx, chatID, "LinkedIn rejected your token. Use /auth to reconnect.\n\n"+note)
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("Failed to post to LinkedIn: %v\n\n%s", err, note))
		return
	}

	at := b.now()
	if err := b.deps.Store.MarkPublished(ctx, postID, res.ID, at); err != nil {
		log.Errorf("Post %s published as %s but not recorded: %v", postID, res.ID, err)
	}
	post.PublishedAt = &at
	post.LinkedInPostID = res.ID
	b.archive(post)

	log.Infof("Published post %s as %s", postID, res.ID)
	b.reply(ctx, chatID, fmt.Sprintf("Posted to LinkedIn!\n\n%s\n\nUse /stats to record how it does, or /generate for another post.", res.URL))
}

// restorePending puts a draft back after a failed publish and returns what the user should know about it
func (b *Bot) restorePending(ctx context.Context, chatID int64, postID string) string {
	restored, err := b.deps.Store.PutPending(ctx, chatID, postID)
	switch {
	case err != nil:
		logrus.WithField("chat_id", chatID).Errorf("Failed to restore pending draft: %v", err)
		return "The draft could not be kept. Use /generate to create a new one."
	case !restored:
		logrus.WithField("chat_id", chatID).Warnf("Draft %s not restored, a newer draft is pending", postID)
		return "A newer draft was generated in the meantime and replaced the one you approved. Reply post to publish the newer draft."
	}
	return "The draft is still waiting. Reply post to try again."
}

// archive keeps a JSON copy of a published post in blob storage
func (b *Bot) archive(post *models.PostRecord) {
	if b.deps.Archive == nil {
		return
	}
	data, err := json.MarshalIndent(post, "", "  ")
	if err != nil {
		logrus.Errorf("Failed to encode post %s: %v", post.ID, err)
		return
	}
	if err := b.deps.Archive.Store(ArchiveName(post), data); err != nil {
		logrus.WithField("chat_id", post.ChatID).Errorf("Failed to archive post %s: %v", post.ID, err)
	}
}

// ArchiveName is the blob name of an archived post
func ArchiveName(post *models.PostRecord) string {
	return fmt.Sprintf("posts/%d/%s.json", post.ChatID, post.ID)
}

// CompleteAuth exchanges an OAuth code and stores the LinkedIn connection for chatID
func (b *Bot) CompleteAuth(ctx context.Context, chatID int64, code string) error {
	token, err := b.deps.Auth.Exchange(ctx, code)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("LinkedIn authentication failed: %v\n\nPlease try /auth again.", err))
		return err
	}
	urn, err := b.deps.Publisher.UserURN(ctx, token.AccessToken)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("LinkedIn authentication failed: %v\n\nPlease try /auth again.", err))
		return err
	}
	if _, err := b.deps.Users.SetLinkedIn(chatID, token.AccessToken, token.Expiry, urn); err != nil {
		b.reply(ctx, chatID, "Could not save your LinkedIn connection, please try again.")
		return err
	}

	logrus.WithField("chat_id", chatID).Info("LinkedIn connected")
	b.reply(ctx, chatID, "LinkedIn connected successfully!\n\nApproved drafts will now be published. Reply post to publish a waiting draft.")
	return nil
}

func (b *Bot) auth(ctx context.Context, chatID int64, _ []string) {
	if user, err := b.deps.Users.Get(chatID); err == nil && user.LinkedInConnected(b.now()) {
		b.reply(ctx, chatID, "LinkedIn is already connected. Use /authstatus to check it or /deauth to disconnect.")
		return
	}
	if !b.deps.Auth.Enabled() {
		b.reply(ctx, chatID, "LinkedIn OAuth is not configured. The bot administrator needs to set LINKEDIN_CLIENT_ID and LINKEDIN_CLIENT_SECRET.")
		return
	}
	url, err := b.deps.Auth.AuthURL(chatID)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("Could not start LinkedIn authentication: %v", err))
		return
	}
	b.reply(ctx, chatID, "Connect your LinkedIn account:\n\n1. Open this link and authorize:\n"+url+
		"\n\n2. You will be redirected back and connected automatically.\n3. If the redirect page shows a code instead, send it here with /authcode <code>.\n\nThe link expires in 10 minutes.")
}

func (b *Bot) authCode(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.reply(ctx, chatID, "Please provide the authorization code.\n\nUsage: /authcode <code>")
		return
	}
	if !b.deps.Auth.Enabled() {
		b.reply(ctx, chatID, "LinkedIn OAuth is not configured.")
		return
	}
	b.reply(ctx, chatID, "Completing LinkedIn authentication...")
	if err := b.CompleteAuth(ctx, chatID, args[0]); err != nil {
		logrus.WithField("chat_id", chatID).Warnf("Manual auth code failed: %v", err)
	}
}

func (b *Bot) authStatus(ctx context.Context, chatID int64, _ []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil || user.LinkedInToken == "" {
		b.reply(ctx, chatID, "LinkedIn: not connected.\n\nUse /auth to connect your LinkedIn account.")
		return
	}
	if !user.LinkedInConnected(b.now()) {
		b.reply(ctx, chatID, "LinkedIn: token expired.\n\nUse /auth to reconnect.")
		return
	}
	expires := "unknown"
	if !user.LinkedInExpiry.IsZero() {
		expires = user.LinkedInExpiry.UTC().Format(time.RFC1123)
	}
	b.reply(ctx, chatID, fmt.Sprintf("LinkedIn: connected\nAccount: %s\nToken expires: %s\n\nUse /deauth to disconnect.", user.LinkedInURN, expires))
}

func (b *Bot) deauth(ctx context.Context, chatID int64, _ []string) {
	user, err := b.deps.Users.Get(chatID)
	if err != nil || user.LinkedInToken == "" {
		b.reply(ctx, chatID, "LinkedIn is not connected. Use /auth to connect.")
		return
	}
	if _, err := b.deps.Users.ClearLinkedIn(chatID); err != nil {
		b.reply(ctx, chatID, "Could not disconnect LinkedIn, please try again.")
		return
	}
	b.reply(ctx, chatID, "LinkedIn disconnected. Use /auth to connect again.")
}
