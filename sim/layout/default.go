package layout

import "fmt"

// Default builds the warehouse used when no map file is supplied: two banks of
// rack columns split by a cross aisle, charging stations on the west wall and
// packing stations on the east wall.
func Default(width, height float64) *Map {
	m := &Map{
		ID:             "default",
		Name:           "Default warehouse",
		Version:        "1.0",
		Width:          width,
		Height:         height,
		GridResolution: DefaultGridResolution,
	}

	// rack banks need room for a 4 m cross aisle and 4 m of clearance at each wall
	bankHeight := height/2 - 6
	col := 0
	for x := 10.0; bankHeight > 0 && x+1.5 <= width-10; x += 5 {
		col++
		m.Obstacles = append(m.Obstacles,
			Obstacle{ID: fmt.Sprintf("rack-%d-s", col), Type: CellRack, X: x, Y: 4, Width: 1.5, Height: bankHeight},
			Obstacle{ID: fmt.Sprintf("rack-%d-n", col), Type: CellRack, X: x, Y: height/2 + 2, Width: 1.5, Height: bankHeight},
		)
		if x+5+1.5 <= width-10 {
			m.Waypoints = append(m.Waypoints, Waypoint{
				ID:   fmt.Sprintf("aisle-%d", col),
				Name: fmt.Sprintf("Aisle %d", col),
				X:    x + 3.25,
				Y:    4 + bankHeight/2,
			})
		}
	}

	for i, y := 0, 3.0; i < 4 && y < height-2; i, y = i+1, y+3 {
		m.Obstacles = append(m.Obstacles, Obstacle{
			ID: fmt.Sprintf("charger-%d", i+1), Type: CellCharging, X: 0.5, Y: y - 0.5, Width: 1, Height: 1,
		})
		m.Waypoints = append(m.Waypoints, Waypoint{
			ID: fmt.Sprintf("%s-%d", RobotSpawnPrefix, i+1), Name: fmt.Sprintf("Charging %d", i+1), X: 2, Y: y,
		})
	}

	if width > 8 {
		for i := 0; i < 3; i++ {
			y := height * float64(i+1) / 4
			m.Obstacles = append(m.Obstacles, Obstacle{
				ID: fmt.Sprintf("station-%d", i+1), Type: CellWorkstation, X: width - 2.5, Y: y - 1, Width: 2, Height: 2,
			})
			m.Waypoints = append(m.Waypoints, Waypoint{
				ID: fmt.Sprintf("%s-%d", HumanSpawnPrefix, i+1), Name: fmt.Sprintf("Packing %d", i+1), X: width - 4, Y: y,
			})
		}
	}

	m.Obstacles = append(m.Obstacles, Obstacle{
		ID: "dock-1", Type: CellDock, X: width/2 - 3, Y: 0, Width: 6, Height: 1.5,
	})
	m.Waypoints = append(m.Waypoints, Waypoint{ID: "dock-1", Name: "Loading dock", X: width / 2, Y: 2.5})

	return m
}
