package discord

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"switch-relay/internal/relay"
)

// Discord API error code for "target user is not connected to voice".
const errCodeTargetNotConnected = 40032

// Send implements relay.Sender. It PATCHes the guild member into the
// channel and classifies the REST outcome. A success for a user the
// session cache does not see in voice is still a success, with a
// not-connected detail attached.
func (b *Bot) Send(userID, channelID string) relay.SendResult {
	err := b.dg.GuildMemberMove(b.guildID, userID, &channelID)
	res := classifySendError(err)
	if res.Status == relay.SendSuccess && !b.userInVoice(userID) {
		res.Detail = "not-connected"
	}
	return res
}

// userInVoice checks the session state cache for an active voice session.
// An uncached guild reports true; the REST response is authoritative.
func (b *Bot) userInVoice(userID string) bool {
	guild, err := b.dg.State.Guild(b.guildID)
	if err != nil {
		return true
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return true
		}
	}
	return false
}

// classifySendError maps a discordgo error onto the sender contract.
func classifySendError(err error) relay.SendResult {
	if err == nil {
		return relay.SendResult{Status: relay.SendSuccess}
	}

	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return relay.SendResult{
			Status:     relay.SendRateLimited,
			StatusCode: http.StatusTooManyRequests,
			Detail:     rl.Message,
		}
	}

	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		status := 0
		if rest.Response != nil {
			status = rest.Response.StatusCode
		}
		if status == http.StatusTooManyRequests {
			return relay.SendResult{Status: relay.SendRateLimited, StatusCode: status, Detail: string(rest.ResponseBody)}
		}
		if rest.Message != nil && rest.Message.Code == errCodeTargetNotConnected {
			return relay.SendResult{Status: relay.SendNotConnected, StatusCode: status, Detail: rest.Message.Message}
		}
		return relay.SendResult{Status: relay.SendError, StatusCode: status, Detail: string(rest.ResponseBody)}
	}

	return relay.SendResult{Status: relay.SendError, Detail: err.Error()}
}
