package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/lending/reserveconfig"
	"lendcore/observability"
)

// ModuleName is the pause key of the lending module.
const ModuleName = "lending"

var errForbidden = errors.New("caller lacks the required role")

// Service exposes the lending engine over HTTP. Engine calls are serialized
// by mu.
type Service struct {
	mu     sync.Mutex
	engine *lending.Engine
	oracle *lending.StaticOracle
	pauses *nativecommon.PauseSet
	gate   lending.Authorizer
	logger *slog.Logger
}

// New wires a service around an engine. oracle and pauses are the operator
// controlled price feed and module pause set the engine was built with.
func New(engine *lending.Engine, oracle *lending.StaticOracle, pauses *nativecommon.PauseSet, gate lending.Authorizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, oracle: oracle, pauses: pauses, gate: gate, logger: logger}
}

// do runs one engine call under the service lock and writes its outcome.
func (s *Service) do(w http.ResponseWriter, operation string, call func() (any, error)) {
	s.mu.Lock()
	start := time.Now()
	out, err := call()
	elapsed := time.Since(start)
	s.mu.Unlock()

	observability.Lending().ObserveOperation(operation, kindName(err), elapsed)
	if err != nil {
		s.logger.Debug("lending operation rejected", "operation", operation, "error", err)
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func caller(r *http.Request) common.Address {
	p, _ := PrincipalFrom(r.Context())
	return p.Address
}

func orCaller(addr *common.Address, fallback common.Address) common.Address {
	if addr == nil || *addr == (common.Address{}) {
		return fallback
	}
	return *addr
}

func pathAddress(r *http.Request, name string) (common.Address, error) {
	return parseAddress(chi.URLParam(r, name))
}

func (s *Service) supply(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "supply", func() (any, error) {
		res, err := s.engine.Supply(from, req.Asset, req.Amount.ptr(), orCaller(req.OnBehalfOf, from))
		return toResultView(res), err
	})
}

func (s *Service) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "withdraw", func() (any, error) {
		res, err := s.engine.Withdraw(from, req.Asset, req.Amount.ptr(), orCaller(req.To, from))
		return toResultView(res), err
	})
}

func (s *Service) borrow(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "borrow", func() (any, error) {
		res, err := s.engine.Borrow(from, req.Asset, req.Amount.ptr(), orCaller(req.OnBehalfOf, from))
		return toResultView(res), err
	})
}

func (s *Service) repay(w http.ResponseWriter, r *http.Request) {
	var req supplyRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "repay", func() (any, error) {
		res, err := s.engine.Repay(from, req.Asset, req.Amount.ptr(), orCaller(req.OnBehalfOf, from))
		return toResultView(res), err
	})
}

func (s *Service) setCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	user := caller(r)
	s.do(w, "set_using_as_collateral", func() (any, error) {
		res, err := s.engine.SetUsingAsCollateral(user, req.Asset, req.Use)
		return toResultView(res), err
	})
}

func (s *Service) supplyUnique(w http.ResponseWriter, r *http.Request) {
	var req uniqueRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "supply_unique", func() (any, error) {
		res, err := s.engine.SupplyUnique(from, req.Collection, tokenIDs(req.TokenIDs), orCaller(req.Account, from))
		return toResultView(res), err
	})
}

func (s *Service) withdrawUnique(w http.ResponseWriter, r *http.Request) {
	var req uniqueRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "withdraw_unique", func() (any, error) {
		res, err := s.engine.WithdrawUnique(from, req.Collection, tokenIDs(req.TokenIDs), orCaller(req.Account, from))
		return toResultView(res), err
	})
}

func (s *Service) setUniqueCollateral(w http.ResponseWriter, r *http.Request) {
	var req uniqueCollateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	user := caller(r)
	s.do(w, "set_unique_using_as_collateral", func() (any, error) {
		res, err := s.engine.SetUniqueUsingAsCollateral(user, req.Collection, tokenIDs(req.TokenIDs), req.Use)
		return toResultView(res), err
	})
}

func (s *Service) liquidate(w http.ResponseWriter, r *http.Request) {
	var req liquidationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	liquidator := caller(r)
	s.do(w, "liquidation_call", func() (any, error) {
		res, err := s.engine.LiquidationCall(liquidator, req.CollateralAsset, req.DebtAsset, req.User, req.DebtToCover.ptr(), req.ReceiveXToken)
		if err != nil {
			return nil, err
		}
		return liquidationView{
			DebtRepaid:       newAmount(res.DebtRepaid),
			CollateralSeized: newAmount(res.CollateralSeized),
			ProtocolFee:      newAmount(res.ProtocolFee),
			Account:          toAccountView(res.Account),
		}, nil
	})
}

func (s *Service) startAuction(w http.ResponseWriter, r *http.Request) {
	var req auctionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "start_auction", func() (any, error) {
		rec, err := s.engine.StartAuction(from, req.User, req.Collection, req.TokenID.ptr())
		if err != nil {
			return nil, err
		}
		return auctionView{Collection: rec.Collection, TokenID: newAmount(rec.TokenID), StartTime: rec.StartTime}, nil
	})
}

func (s *Service) endAuction(w http.ResponseWriter, r *http.Request) {
	var req auctionRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	from := caller(r)
	s.do(w, "end_auction", func() (any, error) {
		data, err := s.engine.EndAuction(from, req.User, req.Collection, req.TokenID.ptr())
		return toAccountView(data), err
	})
}

func (s *Service) liquidateUnique(w http.ResponseWriter, r *http.Request) {
	var req uniqueLiquidationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	liquidator := caller(r)
	s.do(w, "liquidate_unique_asset", func() (any, error) {
		res, err := s.engine.LiquidateUniqueAsset(liquidator, req.Collection, req.TokenID.ptr(), req.DebtAsset, req.User, req.MaxLiquidationAmount.ptr(), req.ReceiveXToken)
		if err != nil {
			return nil, err
		}
		return uniqueLiquidationView{
			Price:          newAmount(res.Price),
			DebtRepaid:     newAmount(res.DebtRepaid),
			ExcessSupplied: newAmount(res.ExcessSupplied),
			ProtocolFee:    newAmount(res.ProtocolFee),
			Multiplier:     newAmount(res.Multiplier),
			Account:        toAccountView(res.Account),
		}, nil
	})
}

func (s *Service) accountData(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	s.do(w, "get_account_data", func() (any, error) {
		data, err := s.engine.GetAccountData(user)
		return toAccountView(data), err
	})
}

func (s *Service) positions(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	s.do(w, "get_user_positions", func() (any, error) {
		list, err := s.engine.GetUserPositions(user)
		return toPositionViews(list), err
	})
}

func (s *Service) reserve(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	s.do(w, "get_reserve", func() (any, error) {
		data, err := s.engine.GetReserve(asset)
		return toReserveView(data), err
	})
}

func (s *Service) reserves(w http.ResponseWriter, _ *http.Request) {
	s.do(w, "get_reserves_list", func() (any, error) {
		list, err := s.engine.GetReservesList()
		if err != nil {
			return nil, err
		}
		out := make([]common.Address, 0, len(list))
		for _, asset := range list {
			if asset != (common.Address{}) {
				out = append(out, asset)
			}
		}
		return out, nil
	})
}

type statusView struct {
	Treasury                    common.Address `json:"treasury"`
	CloseFactorHFThreshold      Amount         `json:"closeFactorHealthFactorThreshold"`
	AuctionRecoveryHealthFactor Amount         `json:"auctionRecoveryHealthFactor"`
	PausedModules               []string       `json:"pausedModules"`
}

func (s *Service) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	params := s.engine.Params()
	s.mu.Unlock()
	view := statusView{
		Treasury:                    params.Treasury,
		CloseFactorHFThreshold:      newAmount(params.CloseFactorHFThreshold),
		AuctionRecoveryHealthFactor: newAmount(params.AuctionRecoveryHealthFactor),
		PausedModules:               []string{},
	}
	if s.pauses != nil {
		view.PausedModules = s.pauses.Paused()
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Service) initReserve(w http.ResponseWriter, r *http.Request) {
	var req initReserveRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	assetType, err := reserveconfig.ParseAssetType(strings.ToLower(strings.TrimSpace(req.Type)))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	in := lending.ReserveInput{
		Asset:                req.Asset,
		AssetType:            assetType,
		Decimals:             req.Decimals,
		InterestRateStrategy: req.InterestRateStrategy,
		AuctionStrategy:      req.AuctionStrategy,
	}
	admin := caller(r)
	s.do(w, "init_reserve", func() (any, error) {
		if _, err := s.engine.InitReserve(admin, in); err != nil {
			return nil, err
		}
		data, err := s.engine.GetReserve(in.Asset)
		return toReserveView(data), err
	})
}

func (s *Service) dropReserve(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	admin := caller(r)
	s.do(w, "drop_reserve", func() (any, error) {
		return map[string]bool{"dropped": true}, s.engine.DropReserve(admin, asset)
	})
}

func (s *Service) configureCollateral(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	var req collateralParamsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	admin := caller(r)
	s.do(w, "configure_reserve_as_collateral", func() (any, error) {
		if err := s.engine.ConfigureReserveAsCollateral(admin, asset, req.Ltv, req.LiquidationThreshold, req.LiquidationBonus); err != nil {
			return nil, err
		}
		data, err := s.engine.GetReserve(asset)
		return toReserveView(data), err
	})
}

type fieldSetter struct {
	kind  string
	apply func(e *lending.Engine, admin, asset common.Address, v valueRequest) error
}

// reserveFields maps the path segment of PUT /v1/admin/reserves/{asset}/{field}
// onto the configurator setter.
var reserveFields = map[string]fieldSetter{
	"reserve-factor": {"uint", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetReserveFactor(admin, asset, *v.Uint)
	}},
	"borrow-cap": {"uint", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetBorrowCap(admin, asset, *v.Uint)
	}},
	"supply-cap": {"uint", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetSupplyCap(admin, asset, *v.Uint)
	}},
	"protocol-fee": {"uint", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetLiquidationProtocolFee(admin, asset, *v.Uint)
	}},
	"active": {"bool", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetReserveActive(admin, asset, *v.Bool)
	}},
	"frozen": {"bool", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetReserveFrozen(admin, asset, *v.Bool)
	}},
	"paused": {"bool", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetReservePaused(admin, asset, *v.Bool)
	}},
	"borrowing": {"bool", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetReserveBorrowingEnabled(admin, asset, *v.Bool)
	}},
	"siloed": {"bool", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetSiloedBorrowing(admin, asset, *v.Bool)
	}},
	"rate-strategy": {"address", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetInterestRateStrategy(admin, asset, *v.Address)
	}},
	"auction-strategy": {"address", func(e *lending.Engine, admin, asset common.Address, v valueRequest) error {
		return e.SetAuctionStrategy(admin, asset, *v.Address)
	}},
}

func (v valueRequest) has(kind string) bool {
	switch kind {
	case "uint":
		return v.Uint != nil
	case "bool":
		return v.Bool != nil
	case "address":
		return v.Address != nil
	}
	return false
}

func (s *Service) setReserveField(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	field := chi.URLParam(r, "field")
	setter, ok := reserveFields[field]
	if !ok {
		writeJSONError(w, http.StatusNotFound, fmt.Errorf("unknown reserve field %q", field))
		return
	}
	var req valueRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !req.has(setter.kind) {
		writeJSONError(w, http.StatusBadRequest, fmt.Errorf("field %s requires a %s value", field, setter.kind))
		return
	}
	admin := caller(r)
	s.do(w, "set_"+strings.ReplaceAll(field, "-", "_"), func() (any, error) {
		if err := setter.apply(s.engine, admin, asset, req); err != nil {
			return nil, err
		}
		data, err := s.engine.GetReserve(asset)
		return toReserveView(data), err
	})
}

func (s *Service) mintToTreasury(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if !s.permitted(caller(r), lending.ActionConfigureRisk) {
		writeJSONError(w, http.StatusForbidden, errForbidden)
		return
	}
	s.do(w, "mint_to_treasury", func() (any, error) {
		return map[string]int{"assets": len(req.Assets)}, s.engine.MintToTreasury(req.Assets)
	})
}

func (s *Service) permitted(addr common.Address, action lending.Action) bool {
	return s.gate != nil && s.gate.IsAuthorized(addr, action, common.Address{})
}

func (s *Service) setPrice(unique bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asset, err := pathAddress(r, "asset")
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		var req priceRequest
		if err := decodeRequest(r, &req); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
		if req.Price.IsZero() {
			writeJSONError(w, http.StatusBadRequest, errors.New("price must be positive"))
			return
		}
		admin := caller(r)
		if !s.permitted(admin, lending.ActionConfigureRisk) {
			writeJSONError(w, http.StatusForbidden, errForbidden)
			return
		}
		if s.oracle == nil {
			writeJSONError(w, http.StatusNotImplemented, errors.New("price feed is not operator controlled"))
			return
		}
		if unique {
			s.oracle.SetUniqueAssetFloorPrice(asset, req.Price.ptr())
		} else {
			s.oracle.SetAssetPrice(asset, req.Price.ptr())
		}
		s.logger.Info("lending price updated", "asset", asset.Hex(), "price", req.Price.Dec(), "floor", unique, "caller", admin.Hex())
		writeJSON(w, http.StatusOK, map[string]Amount{"price": req.Price})
	}
}

func (s *Service) setModulePause(w http.ResponseWriter, r *http.Request) {
	var req pauseRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	admin := caller(r)
	if !s.permitted(admin, lending.ActionEmergency) {
		writeJSONError(w, http.StatusForbidden, errForbidden)
		return
	}
	if s.pauses == nil {
		writeJSONError(w, http.StatusNotImplemented, errors.New("module pauses are not configured"))
		return
	}
	changed := s.pauses.Set(ModuleName, req.Paused)
	if changed {
		s.logger.Warn("lending module pause toggled", "paused", req.Paused, "caller", admin.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused, "changed": changed})
}
