package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/likegate/internal/pkg/errors"
	"github.com/xxxsen/likegate/internal/service"
)

const (
	defaultMaxConcurrency = 32
	updateTimeout         = time.Minute
)

// Sender is the subset of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Deps struct {
	Sender         Sender
	Likes          *service.LikeService
	Verifier       *service.VerificationService
	Privileges     *service.PrivilegeService
	MaxConcurrency int
}

type Bot struct {
	sender     Sender
	likes      *service.LikeService
	verifier   *service.VerificationService
	privileges *service.PrivilegeService
	sem        chan struct{}
	wg         sync.WaitGroup
}

func New(deps Deps) *Bot {
	n := deps.MaxConcurrency
	if n <= 0 {
		n = defaultMaxConcurrency
	}
	return &Bot{
		sender:     deps.Sender,
		likes:      deps.Likes,
		verifier:   deps.Verifier,
		privileges: deps.Privileges,
		sem:        make(chan struct{}, n),
	}
}

// Run dispatches updates until ctx is done or the channel closes, then waits
// for in-flight handlers.
func (b *Bot) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			select {
			case b.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			b.wg.Add(1)
			go func() {
				defer func() {
					<-b.sem
					b.wg.Done()
				}()
				b.HandleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()
	logger := logutil.GetLogger(ctx).With(
		zap.Int("update_id", update.UpdateID),
		zap.Int64("chat_id", msg.Chat.ID),
		zap.Int64("user_id", msg.From.ID),
		zap.String("command", msg.Command()),
	)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling update", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	switch msg.Command() {
	case "like":
		b.handleLike(ctx, msg)
	case "start":
		b.handleStart(ctx, msg)
	case "givevip":
		b.handlePrivilege(ctx, msg, true)
	case "revokevip":
		b.handlePrivilege(ctx, msg, false)
	case "help":
		b.reply(ctx, msg, helpText, true)
	}
}

func (b *Bot) handleLike(ctx context.Context, msg *tgbotapi.Message) {
	req := service.LikeRequest{
		UserID:   msg.From.ID,
		ChatID:   msg.Chat.ID,
		ChatType: msg.Chat.Type,
	}
	if args := strings.Fields(msg.CommandArguments()); len(args) == 2 {
		req.Region, req.TargetID = args[0], args[1]
	}
	result, err := b.likes.Handle(ctx, req)
	if err != nil {
		logutil.GetLogger(ctx).Error("handle like failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		b.reply(ctx, msg, internalErrorText, false)
		return
	}
	b.reply(ctx, msg, result.Text, true)
	b.likes.Mirror(ctx, result)
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		b.reply(ctx, msg, helpText, true)
		return
	}
	outcome, err := b.verifier.Verify(ctx, code)
	if err != nil {
		logutil.GetLogger(ctx).Error("verify from start payload failed", zap.Error(err))
		b.reply(ctx, msg, internalErrorText, false)
		return
	}
	b.reply(ctx, msg, outcome.Message(), false)
}

func (b *Bot) handlePrivilege(ctx context.Context, msg *tgbotapi.Message, grant bool) {
	command := "/revokevip"
	if grant {
		command = "/givevip"
	}
	target, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || target <= 0 {
		if !b.privileges.IsAdmin(msg.From.ID) {
			b.reply(ctx, msg, notAuthorizedText, false)
			return
		}
		b.reply(ctx, msg, fmt.Sprintf("Usage: %s <user_id>", command), false)
		return
	}
	if grant {
		err = b.privileges.Grant(ctx, msg.From.ID, target)
	} else {
		err = b.privileges.Revoke(ctx, msg.From.ID, target)
	}
	switch {
	case err == nil && grant:
		b.reply(ctx, msg, fmt.Sprintf("✅ User %d has been granted VIP access.", target), false)
	case err == nil:
		b.reply(ctx, msg, fmt.Sprintf("✅ VIP access revoked for user %d.", target), false)
	case appErr.IsForbidden(err):
		b.reply(ctx, msg, notAuthorizedText, false)
	default:
		logutil.GetLogger(ctx).Error("update privilege failed", zap.Int64("target_user_id", target), zap.Error(err))
		b.reply(ctx, msg, internalErrorText, false)
	}
}

func (b *Bot) reply(ctx context.Context, msg *tgbotapi.Message, text string, markdown bool) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	out.DisableWebPagePreview = true
	if markdown {
		out.ParseMode = tgbotapi.ModeMarkdown
	}
	if _, err := b.sender.Send(out); err != nil {
		logutil.GetLogger(ctx).Error("send reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}
