package vehicle

// detectParking 停车位检测
// 功能：车身包围盒与停车位区域相交即视为在停车位内，状态变化时记录日志
// 说明：没有配置停车位时不做任何事
func (m *VehicleManager) detectParking() {
	zone := m.ctx.RuntimeConfig().W.ParkingSpot
	if zone == nil {
		return
	}
	world := m.ctx.World()
	center, half := zone.Center.Vec3(), zone.HalfExtents.Vec3()
	for _, v := range m.Vehicles() {
		in := world.Overlaps(v.id, center, half)
		if in == v.inParking {
			continue
		}
		v.inParking = in
		if in {
			log.Infof("%v entered parking spot", v)
		} else {
			log.Infof("%v left parking spot", v)
		}
	}
}
