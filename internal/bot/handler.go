package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkstash/internal/domain"
	"linkstash/internal/pipeline"
	"linkstash/internal/scraper"
	"linkstash/internal/storage"
)

// listLimit caps the number of links /list prints.
const listLimit = 10

// Saver is the part of the pipeline the bot drives.
type Saver interface {
	EnrichAndInsert(ctx context.Context, links []domain.Link) ([]pipeline.Outcome, error)
	Delete(ctx context.Context, link domain.Link) error
}

// Handler holds dependencies for the Telegram bot handlers.
type Handler struct {
	bot   *tgbot.Bot
	saver Saver
	repo  storage.Repository
	log   logrus.FieldLogger
}

// NewHandler creates a new bot handler instance.
func NewHandler(token string, saver Saver, repo storage.Repository, logger logrus.FieldLogger) (*Handler, error) {
	h := &Handler{
		saver: saver,
		repo:  repo,
		log:   logger.WithField("component", "bot_handler"),
	}

	b, err := tgbot.New(token, tgbot.WithDefaultHandler(h.defaultHandler))
	if err != nil {
		h.log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	h.bot = b

	h.registerHandlers()
	h.log.Info("Telegram bot handler initialized")
	return h, nil
}

// registerHandlers sets up the command handlers. Plain messages fall
// through to defaultHandler.
func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypeExact, h.listHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/delete", tgbot.MatchTypePrefix, h.deleteHandler)
	h.log.Info("Registered /start, /list and /delete command handlers")
}

// Start begins polling for updates from Telegram.
// This function blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) reply(ctx context.Context, b *tgbot.Bot, update *models.Update, text string) {
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		h.log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Error("Failed to send reply")
	}
}

func (h *Handler) messageLog(update *models.Update, command string) logrus.FieldLogger {
	fields := logrus.Fields{"chat_id": update.Message.Chat.ID}
	if update.Message.From != nil {
		fields["user_id"] = update.Message.From.ID
	}
	if command != "" {
		fields["command"] = command
	}
	return h.log.WithFields(fields)
}

// startHandler handles the /start command.
func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.messageLog(update, "/start").Info("Received /start command")
	h.reply(ctx, b, update, "Welcome to linkstash! Send me one or more links and I'll save them with their title and preview. Use /list to see recent links and /delete <id> to remove one.")
}

func (h *Handler) listHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.messageLog(update, "/list").Info("Received /list command")
	h.reply(ctx, b, update, h.listReply(ctx))
}

func (h *Handler) deleteHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	h.messageLog(update, "/delete").Info("Received /delete command")
	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/delete"))
	h.reply(ctx, b, update, h.deleteReply(ctx, arg))
}

// defaultHandler saves every URL found in a plain message.
func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	log := h.messageLog(update, "")
	urls := ExtractURLs(update.Message.Text)
	if len(urls) == 0 {
		log.Debug("Received message without links")
		h.reply(ctx, b, update, "Send me a link to save, or use /list.")
		return
	}
	log.WithField("links", len(urls)).Info("Saving links from message")
	h.reply(ctx, b, update, h.saveReply(ctx, urls))
}

// ExtractURLs returns the http(s) URLs in text, in order and without
// duplicates. Trailing punctuation is dropped.
func ExtractURLs(text string) []string {
	var (
		urls []string
		seen = map[string]bool{}
	)
	for _, field := range strings.Fields(text) {
		candidate := strings.TrimRight(field, ".,;:!?)]}>\"'")
		candidate = strings.TrimLeft(candidate, "(<[\"'")
		if _, err := scraper.ValidateURL(candidate); err != nil {
			continue
		}
		if !seen[candidate] {
			seen[candidate] = true
			urls = append(urls, candidate)
		}
	}
	return urls
}

func (h *Handler) saveReply(ctx context.Context, urls []string) string {
	links := make([]domain.Link, len(urls))
	for i, u := range urls {
		links[i] = domain.NewLink(u)
	}

	outcomes, err := h.saver.EnrichAndInsert(ctx, links)
	if err != nil {
		h.log.WithError(err).Error("Failed to save links")
		return "Sorry, I couldn't save that right now. Please try again."
	}

	var sb strings.Builder
	for _, o := range outcomes {
		if o.Succeeded() {
			fmt.Fprintf(&sb, "Saved: %s\n", o.Link.DisplayTitle())
		} else {
			fmt.Fprintf(&sb, "Failed to save: %s\n", o.Link.URL)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) listReply(ctx context.Context) string {
	links, err := h.repo.Links(ctx)
	if err != nil {
		h.log.WithError(err).Error("Failed to list links")
		return "Sorry, I couldn't load your links."
	}
	return FormatLinks(links, listLimit)
}

// FormatLinks renders up to limit links, one per line with their id.
func FormatLinks(links []domain.Link, limit int) string {
	if len(links) == 0 {
		return "No links saved yet."
	}
	var sb strings.Builder
	for i, link := range links {
		if i == limit {
			fmt.Fprintf(&sb, "…and %d more", len(links)-limit)
			break
		}
		star := ""
		if link.Starred {
			star = "★ "
		}
		fmt.Fprintf(&sb, "%s%s\n%s\nid: %s\n\n", star, link.DisplayTitle(), link.URL, link.ID)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (h *Handler) deleteReply(ctx context.Context, arg string) string {
	id, err := uuid.Parse(arg)
	if err != nil {
		return "Usage: /delete <id> (see /list for ids)"
	}
	link, err := h.repo.Link(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return "No link with that id."
	}
	if err != nil {
		h.log.WithError(err).WithField("link_id", id).Error("Failed to load link")
		return "Sorry, I couldn't delete that link."
	}
	if err := h.saver.Delete(ctx, link); err != nil {
		h.log.WithError(err).WithField("link_id", id).Error("Failed to delete link")
		return "Sorry, I couldn't delete that link."
	}
	return "Deleted: " + link.DisplayTitle()
}
