// internal/handlers/admin.go
package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jason-s-yu/partyhost/internal/party"
	"github.com/jason-s-yu/partyhost/internal/pool"
	"github.com/sirupsen/logrus"
)

const defaultPageSize = 50

// AdminPartiesHandler serves GET /admin/parties?leader=&minMembers=&skip=&size=.
func AdminPartiesHandler(logger *logrus.Logger, querier party.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var filter party.Filter
		if leader := q.Get("leader"); leader != "" {
			id, err := uuid.Parse(leader)
			if err != nil {
				http.Error(w, "invalid leader", http.StatusBadRequest)
				return
			}
			filter.LeaderUserID = id
		}
		minMembers, err := intParam(q.Get("minMembers"), 0)
		if err != nil {
			http.Error(w, "invalid minMembers", http.StatusBadRequest)
			return
		}
		filter.MinMembers = minMembers
		skip, err := intParam(q.Get("skip"), 0)
		if err != nil || skip < 0 {
			http.Error(w, "invalid skip", http.StatusBadRequest)
			return
		}
		size, err := intParam(q.Get("size"), defaultPageSize)
		if err != nil || size < 0 {
			http.Error(w, "invalid size", http.StatusBadRequest)
			return
		}

		page, err := querier.SearchParties(r.Context(), filter, skip, size)
		if err != nil {
			logger.WithError(err).Error("party search failed")
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func intParam(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

type poolView struct {
	ID       string        `json:"id"`
	Kind     string        `json:"kind"`
	Children []string      `json:"children,omitempty"`
	Counters pool.Counters `json:"counters"`
}

// AdminPoolsHandler serves GET /admin/pools with the current counters of every pool.
func AdminPoolsHandler(registry *pool.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all := registry.All()
		out := make([]poolView, 0, len(all))
		for _, p := range all {
			view := poolView{ID: p.ID(), Kind: "leaf", Counters: pool.ReadCounters(p)}
			if c, ok := p.(*pool.CompositePool); ok {
				view.Kind = "composite"
				for _, child := range c.Children() {
					view.Children = append(view.Children, child.ID())
				}
			}
			out = append(out, view)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// AdminAgentsHandler serves GET /admin/agents.
func AdminAgentsHandler(agents *pool.AgentDirectory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, agents.Agents())
	}
}

// AdminAgentContainersHandler serves GET /admin/agents/{id}/containers by asking the agent.
func AdminAgentContainersHandler(logger *logrus.Logger, agents *pool.AgentDirectory, client *pool.AgentClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := agents.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		containers, err := client.ListContainers(r.Context(), agent)
		if err != nil {
			logger.WithError(err).WithField("agent_id", agent.ID).Warn("list containers failed")
			http.Error(w, "agent unreachable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, containers)
	}
}

// AdminContainerLogsHandler serves GET /admin/agents/{id}/containers/{cid}/logs as plain text.
func AdminContainerLogsHandler(logger *logrus.Logger, agents *pool.AgentDirectory, client *pool.AgentClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		agent, err := agents.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		logs, err := client.Logs(r.Context(), agent, r.PathValue("cid"))
		if err != nil {
			logger.WithError(err).WithField("agent_id", agent.ID).Warn("fetch container logs failed")
			http.Error(w, "agent unreachable", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(logs))
	}
}
