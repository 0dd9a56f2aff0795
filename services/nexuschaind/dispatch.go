package nexuschaind

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"nexuschain/native/entity"
	"nexuschain/native/nexusconsensus"
	"nexuschain/native/sale"
	"nexuschain/native/shopgov"
	"nexuschain/native/token"
	"nexuschain/nexus/providers"
)

// txHandler decodes a tx's params, invokes the target pallet operation, and
// returns a JSON-serializable result.
type txHandler func(c *Chain, params json.RawMessage) (any, error)

// dispatchTable maps a tx type name to its handler. Names follow
// "<pallet>.<operation>", matching the extrinsic names spec.md uses for the
// on-chain consensus and token/sale pallets (sections 4.8 and 4.11) and the
// equivalent operation names for entity, shop, order, and shopgov.
var dispatchTable = map[string]txHandler{
	"entity.create_entity": handleEntityCreate,
	"entity.approve":       handleEntityApprove,
	"entity.suspend":       handleEntitySuspend,
	"entity.resume":        handleEntityResume,

	"shop.create_shop": handleShopCreate,
	"shop.pause":        handleShopPause,
	"shop.resume":       handleShopResume,

	"catalog.register_product": handleCatalogRegister,
	"order.place_order":        handleOrderPlace,
	"order.ship_order":         handleOrderShip,
	"order.confirm_receipt":    handleOrderConfirmReceipt,

	"token.configure_shop":        handleTokenConfigureShop,
	"token.reward_on_purchase":    handleTokenRewardOnPurchase,
	"token.redeem_for_discount":   handleTokenRedeemForDiscount,

	"sale.create_sale":    handleSaleCreate,
	"sale.subscribe":      handleSaleSubscribe,
	"sale.claim_refund":   handleSaleClaimRefund,

	"shopgov.create_proposal":  handleGovCreateProposal,
	"shopgov.vote":             handleGovVote,
	"shopgov.finalize_voting":  handleGovFinalizeVoting,
	"shopgov.execute_proposal": handleGovExecuteProposal,

	"nexusconsensus.register_node":        handleConsensusRegisterNode,
	"nexusconsensus.activate_node":        handleConsensusActivateNode,
	"nexusconsensus.submit_confirmations": handleConsensusSubmitConfirmations,
	"nexusconsensus.subscribe":            handleConsensusSubscribe,
	"nexusconsensus.claim_rewards":        handleConsensusClaimRewards,

	"ledger.mint": handleLedgerMint,
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("nexuschaind: missing params")
	}
	return json.Unmarshal(raw, v)
}

// --- entity ---

type entityCreateReq struct {
	Owner      string `json:"owner"`
	Name       string `json:"name"`
	EntityType uint8  `json:"entity_type"`
	Mode       uint8  `json:"governance_mode"`
}

func handleEntityCreate(c *Chain, raw json.RawMessage) (any, error) {
	var req entityCreateReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	owner, err := decodeAddr(req.Owner)
	if err != nil {
		return nil, err
	}
	ent, err := c.Entity.CreateEntity(owner, req.Name, entity.EntityType(req.EntityType), entity.GovernanceMode(req.Mode))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           ent.ID,
		"owner":        encodeAddr(ent.Owner),
		"account":      encodeAddr(entity.DeriveAccount(ent.ID)),
		"status":       ent.Status,
		"initial_fund": bigString(ent.InitialFund),
	}, nil
}

type entityIDReq struct {
	ID uint64 `json:"id"`
}

func handleEntityApprove(c *Chain, raw json.RawMessage) (any, error) {
	var req entityIDReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	return nil, c.Entity.Approve(req.ID)
}

type entitySuspendReq struct {
	ID     uint64 `json:"id"`
	Reason string `json:"reason"`
}

func handleEntitySuspend(c *Chain, raw json.RawMessage) (any, error) {
	var req entitySuspendReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	return nil, c.Entity.Suspend(req.ID, req.Reason)
}

func handleEntityResume(c *Chain, raw json.RawMessage) (any, error) {
	var req entityIDReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	return nil, c.Entity.Resume(req.ID)
}

// --- shop ---

type shopCreateReq struct {
	EntityID  uint64 `json:"entity_id"`
	Creator   string `json:"creator"`
	IsPrimary bool   `json:"is_primary"`
}

func handleShopCreate(c *Chain, raw json.RawMessage) (any, error) {
	var req shopCreateReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	creator, err := decodeAddr(req.Creator)
	if err != nil {
		return nil, err
	}
	s, err := c.Shop.CreateShop(req.EntityID, creator, req.IsPrimary)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": s.ID, "entity_id": s.EntityID, "status": s.Status, "is_primary": s.IsPrimary}, nil
}

type shopActionReq struct {
	ID  uint64 `json:"id"`
	Who string `json:"who"`
}

func handleShopPause(c *Chain, raw json.RawMessage) (any, error) {
	var req shopActionReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	who, err := decodeAddr(req.Who)
	if err != nil {
		return nil, err
	}
	return nil, c.Shop.Pause(req.ID, who)
}

func handleShopResume(c *Chain, raw json.RawMessage) (any, error) {
	var req shopActionReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	who, err := decodeAddr(req.Who)
	if err != nil {
		return nil, err
	}
	return nil, c.Shop.Resume(req.ID, who)
}

// --- catalog (order's product source; seeding op with no caller check) ---

type catalogRegisterReq struct {
	ShopID   uint64 `json:"shop_id"`
	Price    string `json:"price"`
	Stock    uint64 `json:"stock"`
	Category uint8  `json:"category"`
}

func handleCatalogRegister(c *Chain, raw json.RawMessage) (any, error) {
	var req catalogRegisterReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	price, err := parseBig(req.Price)
	if err != nil {
		return nil, err
	}
	id := c.Catalog.register(req.ShopID, price, req.Stock, providers.ProductCategory(req.Category))
	return map[string]any{"product_id": id}, nil
}

// --- order ---

type orderPlaceReq struct {
	Buyer       string `json:"buyer"`
	ProductID   uint64 `json:"product_id"`
	Quantity    uint64 `json:"quantity"`
	ShippingCID string `json:"shipping_cid"`
	UseTokens   string `json:"use_tokens"`
	Now         uint64 `json:"now"`
}

func handleOrderPlace(c *Chain, raw json.RawMessage) (any, error) {
	var req orderPlaceReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	buyer, err := decodeAddr(req.Buyer)
	if err != nil {
		return nil, err
	}
	useTokens, err := parseBig(req.UseTokens)
	if err != nil {
		return nil, err
	}
	o, err := c.Order.PlaceOrder(buyer, req.ProductID, req.Quantity, req.ShippingCID, useTokens, req.Now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": o.ID, "status": o.Status, "total_amount": bigString(o.TotalAmount)}, nil
}

type orderSellerActionReq struct {
	Seller      string `json:"seller"`
	OrderID     string `json:"order_id"`
	TrackingCID string `json:"tracking_cid"`
	Now         uint64 `json:"now"`
}

func handleOrderShip(c *Chain, raw json.RawMessage) (any, error) {
	var req orderSellerActionReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	seller, err := decodeAddr(req.Seller)
	if err != nil {
		return nil, err
	}
	return nil, c.Order.ShipOrder(seller, req.OrderID, req.TrackingCID, req.Now)
}

type orderBuyerActionReq struct {
	Buyer   string `json:"buyer"`
	OrderID string `json:"order_id"`
	Now     uint64 `json:"now"`
}

func handleOrderConfirmReceipt(c *Chain, raw json.RawMessage) (any, error) {
	var req orderBuyerActionReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	buyer, err := decodeAddr(req.Buyer)
	if err != nil {
		return nil, err
	}
	return nil, c.Order.ConfirmReceipt(buyer, req.OrderID, req.Now)
}

// --- token ---

type tokenConfigureReq struct {
	ShopID          uint64 `json:"shop_id"`
	Enabled         bool   `json:"enabled"`
	RewardRateBps   uint32 `json:"reward_rate_bps"`
	ExchangeRateBps uint32 `json:"exchange_rate_bps"`
	MinRedeem       string `json:"min_redeem"`
	Transferable    bool   `json:"transferable"`
	TokenType       uint8  `json:"token_type"`
}

func handleTokenConfigureShop(c *Chain, raw json.RawMessage) (any, error) {
	var req tokenConfigureReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	minRedeem, err := parseBig(req.MinRedeem)
	if err != nil {
		return nil, err
	}
	cfg := token.Config{
		Enabled:         req.Enabled,
		RewardRateBps:   req.RewardRateBps,
		ExchangeRateBps: req.ExchangeRateBps,
		MinRedeem:       minRedeem,
		Transferable:    req.Transferable,
		TokenType:       token.Type(req.TokenType),
	}
	return nil, c.Token.ConfigureShop(req.ShopID, cfg)
}

type tokenPurchaseReq struct {
	ShopID uint64 `json:"shop_id"`
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

func handleTokenRewardOnPurchase(c *Chain, raw json.RawMessage) (any, error) {
	var req tokenPurchaseReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	buyer, err := decodeAddr(req.Buyer)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(req.Amount)
	if err != nil {
		return nil, err
	}
	minted, err := c.Token.RewardOnPurchase(req.ShopID, buyer, amount)
	if err != nil {
		return nil, err
	}
	return map[string]any{"minted": bigString(minted)}, nil
}

type tokenRedeemReq struct {
	ShopID uint64 `json:"shop_id"`
	Buyer  string `json:"buyer"`
	Tokens string `json:"tokens"`
}

func handleTokenRedeemForDiscount(c *Chain, raw json.RawMessage) (any, error) {
	var req tokenRedeemReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	buyer, err := decodeAddr(req.Buyer)
	if err != nil {
		return nil, err
	}
	tokens, err := parseBig(req.Tokens)
	if err != nil {
		return nil, err
	}
	discount, err := c.Token.RedeemForDiscount(req.ShopID, buyer, tokens)
	if err != nil {
		return nil, err
	}
	return map[string]any{"discount": bigString(discount)}, nil
}

// --- sale ---

type saleCreateReq struct {
	EntityID       uint64 `json:"entity_id"`
	ShopID         uint64 `json:"shop_id"`
	Mode           uint8  `json:"mode"`
	TotalSupply    string `json:"total_supply"`
	PaymentAsset   string `json:"payment_asset"`
	PaymentPrice   string `json:"payment_price"`
	StartBlock     uint64 `json:"start_block"`
	EndBlock       uint64 `json:"end_block"`
	MinPurchase    string `json:"min_purchase"`
	MaxPurchase    string `json:"max_purchase"`
}

func handleSaleCreate(c *Chain, raw json.RawMessage) (any, error) {
	var req saleCreateReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	totalSupply, err := parseBig(req.TotalSupply)
	if err != nil {
		return nil, err
	}
	price, err := parseBig(req.PaymentPrice)
	if err != nil {
		return nil, err
	}
	minPurchase, err := parseBig(req.MinPurchase)
	if err != nil {
		return nil, err
	}
	maxPurchase, err := parseBig(req.MaxPurchase)
	if err != nil {
		return nil, err
	}
	round, err := c.Sale.CreateSale(
		req.EntityID, req.ShopID, sale.Mode(req.Mode), totalSupply,
		[]sale.PaymentOption{{Asset: req.PaymentAsset, Price: price}},
		sale.VestingConfig{Type: sale.VestingNone},
		false, 0,
		nil, nil,
		req.StartBlock, req.EndBlock,
		minPurchase, maxPurchase,
	)
	if err != nil {
		return nil, err
	}
	return map[string]any{"round_id": round.ID, "status": round.Status}, nil
}

type saleSubscribeReq struct {
	Subscriber string `json:"subscriber"`
	RoundID    uint64 `json:"round_id"`
	Quantity   string `json:"quantity"`
	Asset      string `json:"asset"`
	Now        uint64 `json:"now"`
}

func handleSaleSubscribe(c *Chain, raw json.RawMessage) (any, error) {
	var req saleSubscribeReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	subscriber, err := decodeAddr(req.Subscriber)
	if err != nil {
		return nil, err
	}
	quantity, err := parseBig(req.Quantity)
	if err != nil {
		return nil, err
	}
	sub, err := c.Sale.Subscribe(subscriber, req.RoundID, quantity, req.Asset, 0, req.Now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"round_id": sub.RoundID, "amount": bigString(sub.Amount)}, nil
}

type saleClaimRefundReq struct {
	Subscriber string `json:"subscriber"`
	RoundID    uint64 `json:"round_id"`
}

func handleSaleClaimRefund(c *Chain, raw json.RawMessage) (any, error) {
	var req saleClaimRefundReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	subscriber, err := decodeAddr(req.Subscriber)
	if err != nil {
		return nil, err
	}
	refunded, err := c.Sale.ClaimRefund(subscriber, req.RoundID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"refunded": bigString(refunded)}, nil
}

// --- shopgov ---

type govCreateProposalReq struct {
	ShopID   uint64 `json:"shop_id"`
	Proposer string `json:"proposer"`
	Kind     uint8  `json:"kind"`
	Now      uint64 `json:"now"`
}

func handleGovCreateProposal(c *Chain, raw json.RawMessage) (any, error) {
	var req govCreateProposalReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	proposer, err := decodeAddr(req.Proposer)
	if err != nil {
		return nil, err
	}
	p, err := c.Shopgov.CreateProposal(req.ShopID, proposer, shopgov.Kind(req.Kind), shopgov.Payload{}, req.Now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": p.ID, "status": p.Status}, nil
}

type govVoteReq struct {
	ProposalID uint64 `json:"proposal_id"`
	Voter      string `json:"voter"`
	Choice     uint8  `json:"choice"`
	Now        uint64 `json:"now"`
}

func handleGovVote(c *Chain, raw json.RawMessage) (any, error) {
	var req govVoteReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	voter, err := decodeAddr(req.Voter)
	if err != nil {
		return nil, err
	}
	_, err = c.Shopgov.Vote(req.ProposalID, voter, shopgov.Choice(req.Choice), req.Now)
	return nil, err
}

type govIDNowReq struct {
	ProposalID uint64 `json:"proposal_id"`
	Now        uint64 `json:"now"`
}

func handleGovFinalizeVoting(c *Chain, raw json.RawMessage) (any, error) {
	var req govIDNowReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	p, err := c.Shopgov.FinalizeVoting(req.ProposalID, req.Now)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": p.Status}, nil
}

func handleGovExecuteProposal(c *Chain, raw json.RawMessage) (any, error) {
	var req govIDNowReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	return nil, c.Shopgov.ExecuteProposal(req.ProposalID, req.Now)
}

// --- nexusconsensus ---

type consensusRegisterReq struct {
	Operator     string `json:"operator"`
	PublicKey    string `json:"public_key"`
	EndpointHash string `json:"endpoint_hash"`
}

func handleConsensusRegisterNode(c *Chain, raw json.RawMessage) (any, error) {
	var req consensusRegisterReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	operator, err := decodeAddr(req.Operator)
	if err != nil {
		return nil, err
	}
	pubKey, err := decodeHexBytes(req.PublicKey)
	if err != nil {
		return nil, err
	}
	endpointHash, err := decodeHash32(req.EndpointHash)
	if err != nil {
		return nil, err
	}
	n, err := c.Nexusconsensus.RegisterNode(operator, pubKey, endpointHash)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": n.ID, "status": n.Status, "stake": bigString(n.Stake)}, nil
}

type consensusNodeIDReq struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

func handleConsensusActivateNode(c *Chain, raw json.RawMessage) (any, error) {
	var req consensusNodeIDReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		return nil, err
	}
	return nil, c.Nexusconsensus.ActivateNode(caller, req.ID)
}

type consensusConfirmationsReq struct {
	Caller string   `json:"caller"`
	NodeID uint64   `json:"node_id"`
	MsgIDs []string `json:"msg_ids"`
}

func handleConsensusSubmitConfirmations(c *Chain, raw json.RawMessage) (any, error) {
	var req consensusConfirmationsReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		return nil, err
	}
	return nil, c.Nexusconsensus.SubmitConfirmations(caller, req.NodeID, req.MsgIDs)
}

type consensusSubscribeReq struct {
	Caller  string `json:"caller"`
	BotHash string `json:"bot_hash"`
	Tier    uint8  `json:"tier"`
	Deposit string `json:"deposit"`
}

func handleConsensusSubscribe(c *Chain, raw json.RawMessage) (any, error) {
	var req consensusSubscribeReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		return nil, err
	}
	botHash, err := decodeHash32(req.BotHash)
	if err != nil {
		return nil, err
	}
	deposit, err := parseBig(req.Deposit)
	if err != nil {
		return nil, err
	}
	c.Oracle.registerBot(botHash, caller)
	sub, err := c.Nexusconsensus.Subscribe(caller, botHash, nexusconsensus.Tier(req.Tier), deposit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bot_hash": encodeHash32(sub.BotHash), "status": sub.Status}, nil
}

type consensusClaimRewardsReq struct {
	Caller string `json:"caller"`
	NodeID uint64 `json:"node_id"`
}

func handleConsensusClaimRewards(c *Chain, raw json.RawMessage) (any, error) {
	var req consensusClaimRewardsReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	caller, err := decodeAddr(req.Caller)
	if err != nil {
		return nil, err
	}
	claimed, err := c.Nexusconsensus.ClaimRewards(caller, req.NodeID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"claimed": bigString(claimed)}, nil
}

// --- ledger (genesis/funding op with no caller check, not a pallet tx) ---

type ledgerMintReq struct {
	Who    string `json:"who"`
	Amount string `json:"amount"`
}

func handleLedgerMint(c *Chain, raw json.RawMessage) (any, error) {
	var req ledgerMintReq
	if err := decodeParams(raw, &req); err != nil {
		return nil, err
	}
	who, err := decodeAddr(req.Who)
	if err != nil {
		return nil, err
	}
	amount, err := parseBig(req.Amount)
	if err != nil {
		return nil, err
	}
	c.Ledger.Mint(who, amount)
	return nil, nil
}

// decodeHexBytes decodes an arbitrary-length 0x-prefixed hex string, used for
// public keys which unlike addresses and hashes have no fixed wire length.
func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("nexuschaind: invalid hex: %w", err)
	}
	return b, nil
}
