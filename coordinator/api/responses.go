package api

import (
	"fmt"
	"net/http"

	"github.com/absmach/fedasync/coordinator"
	"github.com/absmach/fedasync/pkg/fl"
	"github.com/absmach/fedasync/pkg/participant"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*listRoundsResponse)(nil)
	_ supermq.Response = (*participantResponse)(nil)
	_ supermq.Response = (*listParticipantsResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
)

type statusResponse struct {
	coordinator.Status
}

func (s statusResponse) Code() int {
	return http.StatusOK
}

func (s statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (s statusResponse) Empty() bool {
	return false
}

type roundResponse struct {
	fl.RoundReport
	created bool
}

func (r roundResponse) Code() int {
	if r.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (r roundResponse) Headers() map[string]string {
	if r.created {
		return map[string]string{
			"Location": fmt.Sprintf("/rounds/%d", r.Round),
		}
	}

	return map[string]string{}
}

func (r roundResponse) Empty() bool {
	return false
}

type listRoundsResponse struct {
	coordinator.RoundPage
}

func (l listRoundsResponse) Code() int {
	return http.StatusOK
}

func (l listRoundsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listRoundsResponse) Empty() bool {
	return false
}

type participantResponse struct {
	participant.Participant
}

func (p participantResponse) Code() int {
	return http.StatusOK
}

func (p participantResponse) Headers() map[string]string {
	return map[string]string{}
}

func (p participantResponse) Empty() bool {
	return false
}

type listParticipantsResponse struct {
	coordinator.ParticipantPage
}

func (l listParticipantsResponse) Code() int {
	return http.StatusOK
}

func (l listParticipantsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (l listParticipantsResponse) Empty() bool {
	return false
}

type modelResponse struct {
	fl.Model
	NumParams int `json:"num_params"`
}

func (m modelResponse) Code() int {
	return http.StatusOK
}

func (m modelResponse) Headers() map[string]string {
	return map[string]string{
		"X-Model-Version": fmt.Sprintf("%d", m.Version),
	}
}

func (m modelResponse) Empty() bool {
	return false
}
