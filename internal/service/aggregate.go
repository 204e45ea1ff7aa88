package service

import (
	"time"

	"github.com/alert-relay/backend/internal/model"
	"github.com/google/uuid"
)

// Aggregate - DeliveryAttempt 목록을 채널별로 집계
//
// 수신자 수는 중복 제거해서 센다. 같은 수신자에 대해 여러 attempt
// (예: card 거부 후 fallback 성공)가 있으면 하나라도 성공이면 성공.
// 전체 success는 성공 수신자가 1명 이상인 채널이 있거나, 시도한 채널이 없을 때 true.
func Aggregate(attempts []model.DeliveryAttempt) model.DeliveryReport {
	type recipientKey struct {
		channel   string
		recipient string
	}

	report := model.DeliveryReport{
		ID:       uuid.NewString(),
		Channels: []model.ChannelReport{},
	}

	index := map[string]int{}
	succeeded := map[recipientKey]bool{}
	recipients := map[string][]string{}

	for _, a := range attempts {
		i, ok := index[a.Channel]
		if !ok {
			i = len(report.Channels)
			index[a.Channel] = i
			report.Channels = append(report.Channels, model.ChannelReport{Channel: a.Channel, Kind: a.Kind})
		}
		report.Channels[i].Attempts = append(report.Channels[i].Attempts, a)

		key := recipientKey{a.Channel, a.Recipient}
		if _, seen := succeeded[key]; !seen {
			recipients[a.Channel] = append(recipients[a.Channel], a.Recipient)
			succeeded[key] = false
		}
		if a.Succeeded() {
			succeeded[key] = true
		}
	}

	report.Success = len(report.Channels) == 0
	for i := range report.Channels {
		ch := &report.Channels[i]
		ch.Total = len(recipients[ch.Channel])
		for _, r := range recipients[ch.Channel] {
			if succeeded[recipientKey{ch.Channel, r}] {
				ch.SuccessCount++
			}
		}

		switch {
		case ch.SuccessCount == ch.Total:
			ch.Status = model.ChannelStatusSuccess
		case ch.SuccessCount > 0:
			ch.Status = model.ChannelStatusPartial
		default:
			ch.Status = model.ChannelStatusFailed
		}

		if ch.Succeeded() {
			report.Success = true
		}
	}

	report.FinishedAt = time.Now().UTC()
	return report
}
