package vehicle

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/carsim-go/entity"
	"github.com/tsinghua-fib-lab/carsim-go/utils"
	"github.com/tsinghua-fib-lab/carsim-go/utils/config"
	"github.com/tsinghua-fib-lab/carsim-go/utils/container"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	VehicleServiceName = "carsim.vehicle.v1.VehicleService"

	GetVehicleProcedure        = "/" + VehicleServiceName + "/GetVehicle"
	GetVehiclesProcedure       = "/" + VehicleServiceName + "/GetVehicles"
	SetVehicleConfigProcedure  = "/" + VehicleServiceName + "/SetVehicleConfig"
	SetIntentProcedure         = "/" + VehicleServiceName + "/SetIntent"
	ConnectGamepadProcedure    = "/" + VehicleServiceName + "/ConnectGamepad"
	DisconnectGamepadProcedure = "/" + VehicleServiceName + "/DisconnectGamepad"
	GetForcesProcedure         = "/" + VehicleServiceName + "/GetForces"
	GetTiresProcedure          = "/" + VehicleServiceName + "/GetTires"
)

// Register 将车辆管理器注册到Sidecar
// 功能：注册VehicleService的RPC处理器
// 参数：sidecar-同步器实例
func (m *VehicleManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		VehicleServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return m.NewHandler(opts...)
		},
	)
}

// NewHandler 构造VehicleService的HTTP处理器
// 说明：请求与响应均为protobuf标准类型（Struct、ListValue、包装类型），不依赖代码生成
func (m *VehicleManager) NewHandler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(GetVehicleProcedure, connect.NewUnaryHandler(GetVehicleProcedure, m.GetVehicle, opts...))
	mux.Handle(GetVehiclesProcedure, connect.NewUnaryHandler(GetVehiclesProcedure, m.GetVehicles, opts...))
	mux.Handle(SetVehicleConfigProcedure, connect.NewUnaryHandler(SetVehicleConfigProcedure, m.SetVehicleConfig, opts...))
	mux.Handle(SetIntentProcedure, connect.NewUnaryHandler(SetIntentProcedure, m.SetIntentRPC, opts...))
	mux.Handle(ConnectGamepadProcedure, connect.NewUnaryHandler(ConnectGamepadProcedure, m.ConnectGamepadRPC, opts...))
	mux.Handle(DisconnectGamepadProcedure, connect.NewUnaryHandler(DisconnectGamepadProcedure, m.DisconnectGamepadRPC, opts...))
	mux.Handle(GetForcesProcedure, connect.NewUnaryHandler(GetForcesProcedure, m.GetForces, opts...))
	mux.Handle(GetTiresProcedure, connect.NewUnaryHandler(GetTiresProcedure, m.GetTires, opts...))
	return "/" + VehicleServiceName + "/", mux
}

// errorCode 把内部错误映射为RPC错误码
func errorCode(err error) connect.Code {
	switch {
	case errors.Is(err, ErrNoBody):
		return connect.CodeNotFound
	default:
		return connect.CodeInvalidArgument
	}
}

// GetVehicle 获取车辆信息
// 功能：返回车辆的参数、控制器绑定、停车位状态与最近一步的车身状态
// 参数：ctx-上下文，in-车身ID
func (m *VehicleManager) GetVehicle(
	ctx context.Context, in *connect.Request[wrapperspb.UInt32Value],
) (*connect.Response[structpb.Struct], error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	v, ok := m.vehicles[entity.BodyID(in.Msg.GetValue())]
	if !ok {
		err := fmt.Errorf("vehicle %v: %w", in.Msg.GetValue(), ErrNoBody)
		return nil, connect.NewError(connect.CodeNotFound, err)
	}
	res, err := structpb.NewStruct(m.vehicleFields(v))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// GetVehicles 批量获取车辆信息
// 参数：in-车身ID列表，为空表示全部车辆
// 返回：{vehicles: [...], missing: [不存在的ID]}
func (m *VehicleManager) GetVehicles(
	ctx context.Context, in *connect.Request[structpb.ListValue],
) (*connect.Response[structpb.Struct], error) {
	ids := make([]entity.BodyID, 0, len(in.Msg.GetValues()))
	for _, v := range in.Msg.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("bad id %v", v))
		}
		ids = append(ids, entity.BodyID(n.NumberValue))
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	found, missing := utils.Find(m.vehicles, m.Vehicles(), ids)
	vehicles := make([]any, 0, len(found))
	for _, v := range found {
		vehicles = append(vehicles, m.vehicleFields(v))
	}
	res, err := structpb.NewStruct(map[string]any{
		"vehicles": vehicles,
		"missing":  lo.Map(missing, func(id entity.BodyID, _ int) any { return float64(id) }),
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// SetVehicleConfig 实时调参
// 功能：修改车辆自己的车型参数副本，返回修改后的参数
// 参数：in-{id, 以及height/width/length/spring_offset/spring_power/shock/max_speed/max_force/turn_radius/grip_strength/cornering_gain/steer_response中的任意项}
func (m *VehicleManager) SetVehicleConfig(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	fields := in.Msg.GetFields()
	id, ok := numberField(fields, "id")
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("id is required"))
	}
	patch := ConfigPatch{
		Height:        optionalNumber(fields, "height"),
		Width:         optionalNumber(fields, "width"),
		Length:        optionalNumber(fields, "length"),
		SpringOffset:  optionalNumber(fields, "spring_offset"),
		SpringPower:   optionalNumber(fields, "spring_power"),
		Shock:         optionalNumber(fields, "shock"),
		MaxSpeed:      optionalNumber(fields, "max_speed"),
		MaxForce:      optionalNumber(fields, "max_force"),
		TurnRadius:    optionalNumber(fields, "turn_radius"),
		GripStrength:  optionalNumber(fields, "grip_strength"),
		CorneringGain: optionalNumber(fields, "cornering_gain"),
		SteerResponse: optionalNumber(fields, "steer_response"),
	}
	c, err := m.SetConfig(entity.BodyID(id), patch)
	if err != nil {
		return nil, connect.NewError(errorCode(err), err)
	}
	res, err := structpb.NewStruct(configFields(c))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// SetIntentRPC 设置控制器的驾驶意图
// 参数：in-{controller, accelerate, brake, steer_left, steer_right, reset, throttle, steer}
func (m *VehicleManager) SetIntentRPC(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	fields := in.Msg.GetFields()
	controller, ok := numberField(fields, "controller")
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("controller must be a number"))
	}
	intent := Intent{
		Keys: Keys{
			Accelerate: boolField(fields, "accelerate"),
			Brake:      boolField(fields, "brake"),
			SteerLeft:  boolField(fields, "steer_left"),
			SteerRight: boolField(fields, "steer_right"),
			Reset:      boolField(fields, "reset"),
		},
	}
	intent.Throttle, _ = numberField(fields, "throttle")
	intent.Steer, _ = numberField(fields, "steer")
	m.SetIntent(entity.ControllerID(controller), intent)
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// ConnectGamepadRPC 手柄接入
// 参数：in-{controller, preset（可选）, position（可选，{x,y,z}）}
func (m *VehicleManager) ConnectGamepadRPC(
	ctx context.Context, in *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	fields := in.Msg.GetFields()
	controller, ok := numberField(fields, "controller")
	if !ok || controller == float64(entity.KeyboardController) {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("controller must be a non-zero number"))
	}
	var position *config.Point
	if p, ok := fields["position"]; ok {
		pf := p.GetStructValue().GetFields()
		x, _ := numberField(pf, "x")
		y, _ := numberField(pf, "y")
		z, _ := numberField(pf, "z")
		position = &config.Point{X: x, Y: y, Z: z}
	}
	preset := fields["preset"].GetStringValue()
	if err := m.ConnectGamepad(entity.ControllerID(controller), preset, position); err != nil {
		return nil, connect.NewError(errorCode(err), err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// DisconnectGamepadRPC 手柄断开
// 返回：删除的车辆数
func (m *VehicleManager) DisconnectGamepadRPC(
	ctx context.Context, in *connect.Request[wrapperspb.Int32Value],
) (*connect.Response[wrapperspb.Int32Value], error) {
	n := m.DisconnectGamepad(entity.ControllerID(in.Msg.GetValue()))
	return connect.NewResponse(wrapperspb.Int32(int32(n))), nil
}

// GetForces 获取最近一步合力计算前的全部作用力
// 返回：[{body, kind, force:[x,y,z], point:[x,y,z]}]
func (m *VehicleManager) GetForces(
	ctx context.Context, in *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.ListValue], error) {
	forces := m.LastForces()
	items := make([]any, 0, len(forces))
	for _, f := range forces {
		items = append(items, map[string]any{
			"body":  float64(f.Body),
			"kind":  f.Kind.String(),
			"force": vecField(f.Force),
			"point": vecField(f.Point),
		})
	}
	res, err := structpb.NewList(items)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

// GetTires 获取轮胎信息
// 参数：in-车身ID，0表示全部
// 返回：[{handle, owner, location, connected_to_engine, color, offset, steer, position}]
// 说明：color按是否连接发动机区分（red/black），position为最近一步车身状态下的世界坐标
func (m *VehicleManager) GetTires(
	ctx context.Context, in *connect.Request[wrapperspb.UInt32Value],
) (*connect.Response[structpb.ListValue], error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	filter := entity.BodyID(in.Msg.GetValue())
	items := make([]any, 0)
	m.tires.Each(func(h container.Handle, t *Tire) bool {
		if filter != 0 && t.owner != filter {
			return true
		}
		item := map[string]any{
			"handle":              h.String(),
			"owner":               float64(t.owner),
			"location":            t.Location.String(),
			"connected_to_engine": t.ConnectedToEngine,
			"color":               tireColor(t),
			"offset":              vecField(t.offset),
			"steer":               t.steer,
		}
		if s, ok := m.snapshot[t.owner]; ok {
			item["position"] = vecField(s.Position.Add(s.Rotation.Rotate(t.offset)))
		}
		items = append(items, item)
		return true
	})
	res, err := structpb.NewList(items)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res), nil
}

func tireColor(t *Tire) string {
	if t.ConnectedToEngine {
		return "red"
	}
	return "black"
}

// vehicleFields 车辆信息
func (m *VehicleManager) vehicleFields(v *Vehicle) map[string]any {
	fields := map[string]any{
		"id":              float64(v.id),
		"name":            v.name,
		"preset":          v.preset,
		"authority":       v.Authority(),
		"in_parking_spot": v.inParking,
		"config":          configFields(v.cfg),
		"throttle":        v.intent.ThrottleValue(),
		"steer":           v.intent.SteerValue(),
	}
	if c, ok := v.Controller(); ok {
		fields["controller"] = float64(c)
	}
	if v.tractor != nil {
		fields["towed_by"] = float64(v.tractor.id)
	}
	if s, ok := m.snapshot[v.id]; ok {
		fields["position"] = vecField(s.Position)
		fields["rotation"] = []any{s.Rotation.W, s.Rotation.X(), s.Rotation.Y(), s.Rotation.Z()}
		fields["lin_vel"] = vecField(s.LinVel)
		fields["ang_vel"] = vecField(s.AngVel)
		fields["mass"] = s.Mass
	}
	return fields
}

func configFields(c config.VehicleConfig) map[string]any {
	return map[string]any{
		"name":           c.Name,
		"height":         c.Height,
		"width":          c.Width,
		"length":         c.Length,
		"wheelbase":      c.Wheelbase,
		"wheel_offset":   c.WheelOffset,
		"spring_offset":  c.SpringOffset,
		"spring_power":   c.SpringPower,
		"shock":          c.Shock,
		"max_speed":      c.MaxSpeed,
		"max_force":      c.MaxForce,
		"turn_radius":    c.TurnRadius,
		"anchor_point":   vecField(c.AnchorPoint.Vec3()),
		"density":        c.Density,
		"grip_strength":  c.GripStrength,
		"cornering_gain": c.CorneringGain,
		"steer_response": c.SteerResponse,
		"drive":          string(c.Drive),
		"authority":      c.Authority,
	}
}

func vecField(v mgl64.Vec3) []any {
	return []any{v.X(), v.Y(), v.Z()}
}

func numberField(fields map[string]*structpb.Value, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

func optionalNumber(fields map[string]*structpb.Value, key string) *float64 {
	if n, ok := numberField(fields, key); ok {
		return &n
	}
	return nil
}

func boolField(fields map[string]*structpb.Value, key string) bool {
	return fields[key].GetBoolValue()
}
