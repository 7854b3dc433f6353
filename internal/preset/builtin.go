package preset

// Built-in presets. GrayScott parameter pairs are the usual named regimes
// of the Pearson classification; every other kind carries at least a
// Default entry resolving to factory defaults.

func grayScott(feed, kill float64) map[string]any {
	return map[string]any{
		"feed_rate":                feed,
		"kill_rate":                kill,
		"diffusion_rate_u":         0.16,
		"diffusion_rate_v":         0.08,
		"timestep":                 1.0,
		"max_timestep":             2.0,
		"stability_factor":         0.8,
		"enable_adaptive_timestep": false,
	}
}

func registerBuiltins(m *Manager) {
	m.registerBuiltin("GrayScott", "Brain Coral", grayScott(0.0545, 0.0620))
	m.registerBuiltin("GrayScott", "Fingerprint", grayScott(0.0370, 0.0600))
	m.registerBuiltin("GrayScott", "Mitosis", grayScott(0.0367, 0.0649))
	m.registerBuiltin("GrayScott", "Ripples", grayScott(0.0180, 0.0510))
	m.registerBuiltin("GrayScott", "Soliton Collapse", grayScott(0.0300, 0.0620))
	m.registerBuiltin("GrayScott", "U-Skate World", grayScott(0.0620, 0.0609))
	m.registerBuiltin("GrayScott", "Undulating", grayScott(0.0260, 0.0540))
	m.registerBuiltin("GrayScott", "Worms", grayScott(0.0780, 0.0610))
	m.registerBuiltin("GrayScott", "Custom", grayScott(0.0550, 0.0620))

	m.registerBuiltin("Moire", "Default", map[string]any{
		"speed": 0.5, "scale": 8.0, "rotation": 0.2, "intensity": 1.0,
	})
	m.registerBuiltin("Moire", "Classic Moiré", map[string]any{
		"speed": 0.2, "scale": 14.0, "rotation": 0.05, "intensity": 1.0,
	})
	m.registerBuiltin("Moire", "Psychedelic", map[string]any{
		"speed": 1.6, "scale": 22.0, "rotation": 0.8, "intensity": 1.0,
	})
	m.registerBuiltin("Moire", "Subtle", map[string]any{
		"speed": 0.1, "scale": 5.0, "rotation": 0.02, "intensity": 0.4,
	})

	for _, kind := range []string{
		"SlimeMold", "ParticleLife", "Flow", "Gradient", "Pellets",
		"PrimordialParticles", "SpaceColonization", "VoronoiCA", "Fluids",
		"Wanderers", "Ecosystem",
	} {
		m.registerBuiltin(kind, "Default", map[string]any{})
	}
}
