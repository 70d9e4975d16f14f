// Package vision defines the contract with the external multimodal
// classification service: the request payload, the fixed instruction
// prompt, image pre-validation and the typed failures every transport
// reports.
package vision

// Prompt is the fixed instruction sent with every image.
const Prompt = `You are a recycling assistant. Identify the single main item in the photo and classify its material.

Respond with ONLY a JSON object, no prose and no markdown, using exactly these fields:
{
  "material_type": one of "plastic", "cardboard", "paper", "glass", "metal", "aluminum", "unknown",
  "ric_code": the Resin Identification Code as an integer from 1 to 7, or null when none is visible or the item is not plastic,
  "confidence": your confidence in the material as an integer from 0 to 100,
  "recyclable": true or false for typical curbside recycling,
  "description": one short sentence describing the item
}

If the image does not show a recognizable item, use "unknown" with a low confidence.`
