package peer

import (
	"math/rand"
	"time"

	"github.com/meshgossip/overlay/internal/domain"
	"github.com/meshgossip/overlay/internal/logging"
	"github.com/meshgossip/overlay/internal/protocol"
	"github.com/meshgossip/overlay/internal/transport"
)

// BootstrapWait is the pause after REGISTER fan-out to let seed
// consensus converge before querying GET_PL.
const BootstrapWait = 3 * time.Second

// selectSeeds shuffles seeds and returns the first k = floor(N/2)+1 of
// them.
func selectSeeds(seeds []domain.NodeID) []domain.NodeID {
	shuffled := make([]domain.NodeID, len(seeds))
	copy(shuffled, seeds)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	k := len(shuffled)/2 + 1
	if k > len(shuffled) {
		k = len(shuffled)
	}
	return shuffled[:k]
}

// registerWithSeeds sends REGISTER{peer=self} to each chosen seed.
func registerWithSeeds(self domain.NodeID, chosen []domain.NodeID, log *logging.Logger) {
	for _, sd := range chosen {
		log.Logf("Registering with seed %s", sd)
		transport.Send(sd, protocol.Envelope{
			Type:     protocol.TypeRegister,
			PeerIP:   self.IP,
			PeerPort: self.Port,
		})
	}
}

// unionPL queries GET_PL from each chosen seed and unions the results,
// excluding self.
func unionPL(self domain.NodeID, chosen []domain.NodeID) []domain.NodeID {
	seen := make(map[domain.NodeID]struct{})
	for _, sd := range chosen {
		reply, ok := transport.SendRecv(sd, protocol.Envelope{Type: protocol.TypeGetPL})
		if !ok {
			continue
		}
		for _, pair := range reply.PL {
			ip, _ := pair[0].(string)
			var port uint16
			switch v := pair[1].(type) {
			case float64:
				port = uint16(v)
			case uint16:
				port = v
			}
			id := domain.NewNodeID(ip, port)
			if id == self || id.Zero() {
				continue
			}
			seen[id] = struct{}{}
		}
	}

	out := make([]domain.NodeID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// probeDegrees sends GET_DEGREE to each candidate and collects replies.
// Candidates that don't answer are dropped.
func probeDegrees(candidates []domain.NodeID) map[domain.NodeID]int {
	degrees := make(map[domain.NodeID]int)
	for _, c := range candidates {
		reply, ok := transport.SendRecv(c, protocol.Envelope{Type: protocol.TypeGetDegree})
		if !ok {
			continue
		}
		degrees[c] = reply.Degree
	}
	return degrees
}

// choosePreferential selects c distinct neighbors from degrees by
// weighted sampling without replacement, proportional to degree
//. c = min(uniform(1,3), len(degrees)); c==0
// yields no selection. Falls back to uniform weighting when the total
// degree is zero. Uses inverse-CDF sampling with the documented
// tie-break: if rounding pushes r past every cumulative band, the last
// remaining candidate is picked.
func choosePreferential(degrees map[domain.NodeID]int) []domain.NodeID {
	pool := make([]domain.NodeID, 0, len(degrees))
	weights := make([]int, 0, len(degrees))
	for id, d := range degrees {
		pool = append(pool, id)
		weights = append(weights, d)
	}
	if len(pool) == 0 {
		return nil
	}

	c := rand.Intn(3) + 1 // uniform(1,3)
	if c > len(pool) {
		c = len(pool)
	}
	if c == 0 {
		return nil
	}

	selected := make([]domain.NodeID, 0, c)
	for i := 0; i < c; i++ {
		idx := sampleIndex(pool, weights)
		selected = append(selected, pool[idx])
		pool = append(pool[:idx], pool[idx+1:]...)
		weights = append(weights[:idx], weights[idx+1:]...)
	}
	return selected
}

// sampleIndex picks one index from pool via inverse-CDF sampling
// weighted by weights, falling back to uniform when the total weight
// is zero.
func sampleIndex(pool []domain.NodeID, weights []int) int {
	total := 0
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return rand.Intn(len(pool))
	}

	r := rand.Float64()
	cum := 0.0
	for i, w := range weights {
		cum += float64(w) / float64(total)
		if r < cum {
			return i
		}
	}
	return len(pool) - 1 // tie-break: rounding overrun picks the last candidate
}

// establishLinks adds each selected peer as a neighbor and sends
// ADD_NEIGHBOR so the edge becomes bidirectional.
func establishLinks(state *State, selected []domain.NodeID, log *logging.Logger) {
	for _, id := range selected {
		state.AddNeighbor(id)
		log.Logf("Establishing link with %s", id)
		transport.Send(id, protocol.Envelope{
			Type:     protocol.TypeAddNeighbor,
			PeerIP:   state.Self().IP,
			PeerPort: state.Self().Port,
		})
	}
}

// Bootstrap runs the one-shot registration and topology build sequence
// against the given seed list. Intended to
// be called once, synchronously, at peer startup.
func Bootstrap(state *State, seeds []domain.NodeID, log *logging.Logger) {
	self := state.Self()

	chosen := selectSeeds(seeds)
	registerWithSeeds(self, chosen, log)

	time.Sleep(BootstrapWait)

	candidates := unionPL(self, chosen)
	if len(candidates) == 0 {
		log.Logf("No candidate peers found in union PL; starting with zero neighbors")
		return
	}

	degrees := probeDegrees(candidates)
	selected := choosePreferential(degrees)
	if len(selected) == 0 {
		log.Logf("Preferential attachment selected zero neighbors")
		return
	}

	establishLinks(state, selected, log)
}
