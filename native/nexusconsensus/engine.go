package nexusconsensus

import (
	"bytes"
	"errors"
	"math/big"

	"nexuschain/core/events"
	"nexuschain/nexus/providers"
)

var (
	ErrTooManyNodes           = errors.New("nexusconsensus: active node list is full")
	ErrInsufficientStake      = errors.New("nexusconsensus: operator free balance below minimum stake")
	ErrNodeNotFound           = errors.New("nexusconsensus: node not found")
	ErrNotOperator            = errors.New("nexusconsensus: caller is not the node operator")
	ErrAlreadyExiting         = errors.New("nexusconsensus: node is already exiting")
	ErrNotExiting             = errors.New("nexusconsensus: node is not exiting")
	ErrCooldownNotExpired     = errors.New("nexusconsensus: exit cooldown has not elapsed")
	ErrNodeNotActive          = errors.New("nexusconsensus: node is not active")
	ErrNotProbation           = errors.New("nexusconsensus: node is not in probation")
	ErrEquivocationSameHash   = errors.New("nexusconsensus: h_a and h_b must differ")
	ErrEquivocationAlreadyReported = errors.New("nexusconsensus: equivocation already reported for this (owner, seq)")
	ErrBotNotFound            = errors.New("nexusconsensus: bot not found")
	ErrNotBotOwner            = errors.New("nexusconsensus: caller does not own this bot")
	ErrAlreadySubscribed      = errors.New("nexusconsensus: bot already has a subscription")
	ErrSubscriptionNotFound   = errors.New("nexusconsensus: subscription not found")
	ErrSubscriptionCancelled  = errors.New("nexusconsensus: subscription is cancelled")
	ErrDepositBelowTierFee    = errors.New("nexusconsensus: deposit is below the tier fee")
	ErrSameTier               = errors.New("nexusconsensus: new tier matches current tier")
	ErrNothingPending         = errors.New("nexusconsensus: no pending reward to claim")
)

const (
	EventTypeNodeRegistered     = "nexusconsensus.node_registered"
	EventTypeNodeExitRequested  = "nexusconsensus.node_exit_requested"
	EventTypeNodeExited         = "nexusconsensus.node_exited"
	EventTypeNodeActivated      = "nexusconsensus.node_activated"
	EventTypeNodeSuspended      = "nexusconsensus.node_suspended"
	EventTypeEquivocationReported = "nexusconsensus.equivocation_reported"
	EventTypeSubscribed         = "nexusconsensus.subscribed"
	EventTypeSubscriptionCancelled = "nexusconsensus.subscription_cancelled"
	EventTypeRewardsClaimed     = "nexusconsensus.rewards_claimed"
	EventTypeEraCompleted       = "nexusconsensus.era_completed"
)

type NodeRegistered struct{ Node *Node }

func (NodeRegistered) EventType() string { return EventTypeNodeRegistered }

type NodeExitRequested struct{ Node *Node }

func (NodeExitRequested) EventType() string { return EventTypeNodeExitRequested }

type NodeExited struct{ NodeID uint64 }

func (NodeExited) EventType() string { return EventTypeNodeExited }

type NodeActivated struct{ Node *Node }

func (NodeActivated) EventType() string { return EventTypeNodeActivated }

type NodeSuspended struct{ Node *Node }

func (NodeSuspended) EventType() string { return EventTypeNodeSuspended }

type EquivocationReported struct{ Evidence *EquivocationEvidence }

func (EquivocationReported) EventType() string { return EventTypeEquivocationReported }

type Subscribed struct{ Subscription *Subscription }

func (Subscribed) EventType() string { return EventTypeSubscribed }

type SubscriptionCancelled struct{ Subscription *Subscription }

func (SubscriptionCancelled) EventType() string { return EventTypeSubscriptionCancelled }

type RewardsClaimed struct {
	NodeID uint64
	Amount *big.Int
}

func (RewardsClaimed) EventType() string { return EventTypeRewardsClaimed }

type EraCompleted struct{ Info *EraRewardInfo }

func (EraCompleted) EventType() string { return EventTypeEraCompleted }

// Store is the narrow persistence interface Engine depends on.
type Store interface {
	NextNodeID() uint64
	GetNode(id uint64) (*Node, bool, error)
	PutNode(n *Node) error
	DeleteNode(id uint64) error
	AllNodes() ([]*Node, error)

	ActiveNodeList() ([]uint64, error)
	PushActive(id uint64) error
	RemoveActive(id uint64) error

	HasConfirmation(msgID string, nodeID uint64) (bool, error)
	PutConfirmation(msgID string, nodeID uint64) error

	GetEquivocation(owner [20]byte, seq uint64) (*EquivocationEvidence, bool, error)
	PutEquivocation(e *EquivocationEvidence) error

	GetSubscription(botHash [32]byte) (*Subscription, bool, error)
	PutSubscription(s *Subscription) error
	AllSubscriptions() ([]*Subscription, error)

	CurrentEra() (uint64, error)
	EraStartBlock() (uint64, error)
	SetEra(era, startBlock uint64) error
	PutEraRewardInfo(info *EraRewardInfo) error
	GetEraRewardInfo(era uint64) (*EraRewardInfo, bool, error)
}

// Engine implements the consensus pallet's transaction surface and era
// settlement.
type Engine struct {
	store     Store
	currency  providers.Currency
	bots      providers.BotRegistryProvider
	cfg       Config
	treasury  [20]byte
	emitter   events.Emitter
}

func NewEngine(store Store, currency providers.Currency, bots providers.BotRegistryProvider, treasury [20]byte, cfg Config) *Engine {
	return &Engine{store: store, currency: currency, bots: bots, treasury: treasury, cfg: cfg, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) emit(ev events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}

func (e *Engine) mustNode(id uint64) (*Node, error) {
	n, ok, err := e.store.GetNode(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// RegisterNode reserves MinStake from the operator, creates the node in
// Probation with starting reputation 5000, and pushes it onto the active
// list.
func (e *Engine) RegisterNode(operator [20]byte, publicKey []byte, endpointHash [32]byte) (*Node, error) {
	active, err := e.store.ActiveNodeList()
	if err != nil {
		return nil, err
	}
	if uint64(len(active)) >= e.cfg.MaxNodes {
		return nil, ErrTooManyNodes
	}
	free, err := e.currency.FreeBalance(operator)
	if err != nil {
		return nil, err
	}
	if free.Cmp(e.cfg.MinStake) < 0 {
		return nil, ErrInsufficientStake
	}
	if err := e.currency.Reserve(operator, e.cfg.MinStake); err != nil {
		return nil, err
	}

	n := &Node{
		ID:            e.store.NextNodeID(),
		Operator:      operator,
		PublicKey:     append([]byte(nil), publicKey...),
		EndpointHash:  endpointHash,
		Status:        NodeStatusProbation,
		Stake:         new(big.Int).Set(e.cfg.MinStake),
		Reputation:    5000,
		PendingReward: big.NewInt(0),
	}
	if err := e.store.PutNode(n); err != nil {
		return nil, err
	}
	if err := e.store.PushActive(n.ID); err != nil {
		return nil, err
	}
	e.emit(NodeRegistered{Node: n})
	return n, nil
}

// ActivateNode promotes a Probation node to Active. Caller must be operator.
func (e *Engine) ActivateNode(caller [20]byte, id uint64) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	if n.Operator != caller {
		return ErrNotOperator
	}
	if n.Status != NodeStatusProbation {
		return ErrNotProbation
	}
	n.Status = NodeStatusActive
	if err := e.store.PutNode(n); err != nil {
		return err
	}
	e.emit(NodeActivated{Node: n})
	return nil
}

// RequestExit marks a node Exiting, removes it from the active list, and
// records the exit block for cooldown purposes.
func (e *Engine) RequestExit(caller [20]byte, id uint64, now uint64) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	if n.Operator != caller {
		return ErrNotOperator
	}
	if n.Status == NodeStatusExiting {
		return ErrAlreadyExiting
	}
	if err := e.store.RemoveActive(id); err != nil {
		return err
	}
	n.Status = NodeStatusExiting
	n.ExitBlock = now
	if err := e.store.PutNode(n); err != nil {
		return err
	}
	e.emit(NodeExitRequested{Node: n})
	return nil
}

// FinalizeExit unreserves the operator's stake and deletes the node, once
// ExitCooldownBlocks has elapsed since RequestExit.
func (e *Engine) FinalizeExit(caller [20]byte, id uint64, now uint64) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	if n.Operator != caller {
		return ErrNotOperator
	}
	if n.Status != NodeStatusExiting {
		return ErrNotExiting
	}
	if now < n.ExitBlock+e.cfg.ExitCooldownBlocks {
		return ErrCooldownNotExpired
	}
	if _, err := e.currency.Unreserve(n.Operator, n.Stake); err != nil {
		return err
	}
	if err := e.store.DeleteNode(id); err != nil {
		return err
	}
	e.emit(NodeExited{NodeID: id})
	return nil
}

// SubmitConfirmations records, for each novel msg_id the caller's node has
// not yet confirmed, that it has confirmed it. Caller must own an Active
// node. Idempotent per (msg_id, node).
func (e *Engine) SubmitConfirmations(caller [20]byte, nodeID uint64, msgIDs []string) error {
	n, err := e.mustNode(nodeID)
	if err != nil {
		return err
	}
	if n.Operator != caller {
		return ErrNotOperator
	}
	if n.Status != NodeStatusActive {
		return ErrNodeNotActive
	}
	novel := 0
	for _, msgID := range msgIDs {
		seen, err := e.store.HasConfirmation(msgID, nodeID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}
		if err := e.store.PutConfirmation(msgID, nodeID); err != nil {
			return err
		}
		novel++
	}
	if novel > 0 {
		n.Uptime.Confirmed += uint64(novel)
		if err := e.store.PutNode(n); err != nil {
			return err
		}
	}
	return nil
}

// ReportEquivocation stores proof that owner signed two distinct hashes at
// the same sequence, and slashes SlashPercentageBps of the equivocating
// node's operator's stake, paying ReporterRewardPercentageBps of the
// slashed amount to the reporter. Redesigned from evidence-only recording:
// a proven double-sign now has an economic consequence instead of being
// filed for a future release.
func (e *Engine) ReportEquivocation(reporter [20]byte, owner [20]byte, seq uint64, hashA [32]byte, sigA []byte, hashB [32]byte, sigB []byte, now uint64) (*EquivocationEvidence, error) {
	if bytes.Equal(hashA[:], hashB[:]) {
		return nil, ErrEquivocationSameHash
	}
	if _, ok, err := e.store.GetEquivocation(owner, seq); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrEquivocationAlreadyReported
	}

	ev := &EquivocationEvidence{
		Owner: owner, Seq: seq,
		HashA: hashA, SigA: append([]byte(nil), sigA...),
		HashB: hashB, SigB: append([]byte(nil), sigB...),
		Reporter: reporter, ReportedAt: now,
	}
	if err := e.store.PutEquivocation(ev); err != nil {
		return nil, err
	}

	if err := e.slashOperator(owner, reporter); err != nil {
		return nil, err
	}

	e.emit(EquivocationReported{Evidence: ev})
	return ev, nil
}

// slashOperator slashes SlashPercentageBps of owner's reserved stake across
// any nodes it operates, sets each such node that is Active to Suspended, and pays the
// reporter ReporterRewardPercentageBps of the total slashed amount.
func (e *Engine) slashOperator(owner, reporter [20]byte) error {
	nodes, err := e.store.AllNodes()
	if err != nil {
		return err
	}
	totalSlashed := big.NewInt(0)
	for _, n := range nodes {
		if n.Operator != owner {
			continue
		}
		slashAmount := new(big.Int).Mul(n.Stake, big.NewInt(int64(e.cfg.SlashPercentageBps)))
		slashAmount.Quo(slashAmount, big.NewInt(bpsDenominator))
		if slashAmount.Sign() <= 0 {
			continue
		}
		slashed, err := e.currency.Slash(owner, slashAmount)
		if err != nil {
			return err
		}
		n.Stake.Sub(n.Stake, slashed)
		if n.Stake.Sign() < 0 {
			n.Stake = big.NewInt(0)
		}
		if n.Status == NodeStatusActive {
			if err := e.store.RemoveActive(n.ID); err != nil {
				return err
			}
			n.Status = NodeStatusSuspended
			e.emit(NodeSuspended{Node: n})
		}
		if err := e.store.PutNode(n); err != nil {
			return err
		}
		totalSlashed.Add(totalSlashed, slashed)
	}
	if totalSlashed.Sign() > 0 {
		reward := new(big.Int).Mul(totalSlashed, big.NewInt(int64(e.cfg.ReporterRewardPercentageBps)))
		reward.Quo(reward, big.NewInt(bpsDenominator))
		if reward.Sign() > 0 {
			if err := e.currency.DepositCreating(reporter, reward); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReportNodeOffline docks reputation 10 points per evidence entry and
// suspends the node (removing it from the active list) if it drops below
// SuspendThreshold while Active.
func (e *Engine) ReportNodeOffline(id uint64, evidenceMsgIDs []string) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	penalty := uint32(10 * len(evidenceMsgIDs))
	if penalty > n.Reputation {
		n.Reputation = 0
	} else {
		n.Reputation -= penalty
	}
	n.Uptime.Missed += uint64(len(evidenceMsgIDs))
	if n.Reputation < e.cfg.SuspendThreshold && n.Status == NodeStatusActive {
		if err := e.store.RemoveActive(id); err != nil {
			return err
		}
		n.Status = NodeStatusSuspended
		e.emit(NodeSuspended{Node: n})
	}
	return e.store.PutNode(n)
}

// ReportLeaderTimeout increments timeout/consecutive counters and docks 100
// reputation once three timeouts occur consecutively.
func (e *Engine) ReportLeaderTimeout(id uint64) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	n.Leader.Timeouts++
	n.Leader.ConsecutiveMisses++
	if n.Leader.ConsecutiveMisses >= 3 {
		if n.Reputation < 100 {
			n.Reputation = 0
		} else {
			n.Reputation -= 100
		}
	}
	return e.store.PutNode(n)
}

// ReportLeaderSuccess increments successful leads, resets the consecutive
// miss counter, and awards 1 reputation point, capped at 10000.
func (e *Engine) ReportLeaderSuccess(id uint64) error {
	n, err := e.mustNode(id)
	if err != nil {
		return err
	}
	n.Leader.Successful++
	n.Leader.ConsecutiveMisses = 0
	if n.Reputation < 10_000 {
		n.Reputation++
	}
	return e.store.PutNode(n)
}

// Subscribe creates a bot's first subscription, reserving deposit (which
// must be at least the tier's fee) from the caller.
func (e *Engine) Subscribe(caller [20]byte, botHash [32]byte, tier Tier, deposit *big.Int) (*Subscription, error) {
	if !e.bots.BotExists(botHash) || !e.bots.IsBotOwner(botHash, caller) {
		return nil, ErrBotNotFound
	}
	if _, ok, err := e.store.GetSubscription(botHash); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadySubscribed
	}
	fee := e.cfg.TierFee(tier)
	if deposit.Cmp(fee) < 0 {
		return nil, ErrDepositBelowTierFee
	}
	if err := e.currency.Reserve(caller, deposit); err != nil {
		return nil, err
	}
	s := &Subscription{
		BotHash: botHash, Owner: caller, Tier: tier,
		Escrow: new(big.Int).Set(deposit), Status: SubStatusActive,
	}
	if err := e.store.PutSubscription(s); err != nil {
		return nil, err
	}
	e.emit(Subscribed{Subscription: s})
	return s, nil
}

func (e *Engine) mustSubscription(botHash [32]byte) (*Subscription, error) {
	s, ok, err := e.store.GetSubscription(botHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return s, nil
}

// DepositSubscription adds amount to a bot's subscription escrow, and
// revives it to Active if it was PastDue or Suspended.
func (e *Engine) DepositSubscription(caller [20]byte, botHash [32]byte, amount *big.Int) error {
	s, err := e.mustSubscription(botHash)
	if err != nil {
		return err
	}
	if s.Status == SubStatusCancelled {
		return ErrSubscriptionCancelled
	}
	if err := e.currency.Reserve(caller, amount); err != nil {
		return err
	}
	s.Escrow.Add(s.Escrow, amount)
	if s.Status == SubStatusPastDue || s.Status == SubStatusSuspended {
		s.Status = SubStatusActive
	}
	return e.store.PutSubscription(s)
}

// CancelSubscription unreserves the remaining escrow to the owner and marks
// the subscription Cancelled.
func (e *Engine) CancelSubscription(caller [20]byte, botHash [32]byte) error {
	s, err := e.mustSubscription(botHash)
	if err != nil {
		return err
	}
	if s.Owner != caller {
		return ErrNotBotOwner
	}
	if s.Escrow.Sign() > 0 {
		if _, err := e.currency.Unreserve(s.Owner, s.Escrow); err != nil {
			return err
		}
	}
	s.Escrow = big.NewInt(0)
	s.Status = SubStatusCancelled
	if err := e.store.PutSubscription(s); err != nil {
		return err
	}
	e.emit(SubscriptionCancelled{Subscription: s})
	return nil
}

// ChangeTier updates a subscription's tier and fee, provided the caller owns
// it, it is not Cancelled, and the new tier differs from the current one.
func (e *Engine) ChangeTier(caller [20]byte, botHash [32]byte, newTier Tier) error {
	s, err := e.mustSubscription(botHash)
	if err != nil {
		return err
	}
	if s.Owner != caller {
		return ErrNotBotOwner
	}
	if s.Status == SubStatusCancelled {
		return ErrSubscriptionCancelled
	}
	if s.Tier == newTier {
		return ErrSameTier
	}
	s.Tier = newTier
	return e.store.PutSubscription(s)
}

// ClaimRewards deposits a node's pending era rewards to its operator and
// clears the pending balance.
func (e *Engine) ClaimRewards(caller [20]byte, nodeID uint64) (*big.Int, error) {
	n, err := e.mustNode(nodeID)
	if err != nil {
		return nil, err
	}
	if n.Operator != caller {
		return nil, ErrNotOperator
	}
	if n.PendingReward.Sign() <= 0 {
		return nil, ErrNothingPending
	}
	amount := new(big.Int).Set(n.PendingReward)
	if err := e.currency.DepositCreating(n.Operator, amount); err != nil {
		return nil, err
	}
	n.PendingReward = big.NewInt(0)
	if err := e.store.PutNode(n); err != nil {
		return nil, err
	}
	e.emit(RewardsClaimed{NodeID: nodeID, Amount: amount})
	return amount, nil
}

// SettleEra runs the full era settlement algorithm: advances subscription
// billing, computes the reward pool, distributes it across eligible active
// nodes weighted by reputation/uptime/leader-bonus, and rolls CurrentEra
// forward.
func (e *Engine) SettleEra(now uint64) (*EraRewardInfo, error) {
	era, err := e.store.CurrentEra()
	if err != nil {
		return nil, err
	}
	inflation := e.cfg.InflationPerEra

	subs, err := e.store.AllSubscriptions()
	if err != nil {
		return nil, err
	}
	income := big.NewInt(0)
	for _, s := range subs {
		if s.Status == SubStatusCancelled {
			continue
		}
		fee := e.cfg.TierFee(s.Tier)
		if fee.Sign() > 0 && s.Escrow.Cmp(fee) >= 0 {
			s.Escrow.Sub(s.Escrow, fee)
			s.PaidUntilEra = era
			s.Status = SubStatusActive
			income.Add(income, fee)
		} else {
			switch s.Status {
			case SubStatusActive:
				s.Status = SubStatusPastDue
			case SubStatusPastDue:
				s.Status = SubStatusSuspended
			}
		}
		if err := e.store.PutSubscription(s); err != nil {
			return nil, err
		}
	}

	pool := new(big.Int).Mul(income, big.NewInt(8_000))
	pool.Quo(pool, big.NewInt(bpsDenominator))
	pool.Add(pool, inflation)

	treasuryShare := new(big.Int).Mul(income, big.NewInt(1_000))
	treasuryShare.Quo(treasuryShare, big.NewInt(bpsDenominator))
	if treasuryShare.Sign() > 0 {
		if err := e.currency.DepositCreating(e.treasury, treasuryShare); err != nil {
			return nil, err
		}
	}

	allNodes, err := e.store.AllNodes()
	if err != nil {
		return nil, err
	}
	rewards := settleEraRewards(e.cfg, allNodes, pool)
	totalDistributed := big.NewInt(0)
	for id, amount := range rewards {
		n, err := e.mustNode(id)
		if err != nil {
			return nil, err
		}
		n.PendingReward.Add(n.PendingReward, amount)
		if err := e.store.PutNode(n); err != nil {
			return nil, err
		}
		totalDistributed.Add(totalDistributed, amount)
	}

	info := &EraRewardInfo{
		Era: era, SubscriptionIncome: income, InflationMint: new(big.Int).Set(inflation),
		TotalDistributed: totalDistributed, TreasuryShare: treasuryShare, NodeCount: uint64(len(rewards)),
	}
	if err := e.store.PutEraRewardInfo(info); err != nil {
		return nil, err
	}
	e.emit(EraCompleted{Info: info})

	if err := e.store.SetEra(era+1, now); err != nil {
		return nil, err
	}
	return info, nil
}
