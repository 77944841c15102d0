package authapi

import (
	"lodge/cmd/internal/auth/session"
)

func toSessionResponse(issued session.Issued) sessionResponse {
	return sessionResponse{
		UserID:           issued.Record.UserID,
		JTI:              issued.Record.JTI,
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.Record.ExpiresAt,
		RememberMe:       issued.Record.RememberMe,
		Evicted:          len(issued.Evicted),
	}
}

func toSessionInfos(recs []session.Record, currentJTI string) []sessionInfo {
	out := make([]sessionInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, sessionInfo{
			JTI:        r.JTI,
			Device:     r.Device(),
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
			RememberMe: r.RememberMe,
			Current:    r.JTI == currentJTI,
		})
	}
	return out
}
